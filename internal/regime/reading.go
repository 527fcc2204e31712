// Package regime evaluates market-wide "altseason" ratios against thresholds
// and debounces the resulting notifications.
package regime

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule names one ratio check.
type Rule string

const (
	RuleBTCDominance   Rule = "btc_dominance"
	RuleETHBTC         Rule = "eth_btc"
	RuleAltseasonIndex Rule = "altseason_index"
	RuleTotal2         Rule = "total2_trillions"
)

// Comparison is the fixed direction in which a rule triggers.
type Comparison string

const (
	Below     Comparison = "below"
	AtOrAbove Comparison = "at_or_above"
)

// Reading is a snapshot of the four ratios. Any field may be absent.
type Reading struct {
	AsOf           time.Time
	BTCDominance   decimal.NullDecimal
	ETHBTC         decimal.NullDecimal
	AltseasonIndex decimal.NullDecimal
	Total2T        decimal.NullDecimal
}

// Present counts the ratios carried by the reading.
func (r Reading) Present() int {
	n := 0
	for _, v := range []decimal.NullDecimal{r.BTCDominance, r.ETHBTC, r.AltseasonIndex, r.Total2T} {
		if v.Valid {
			n++
		}
	}
	return n
}

// Thresholds are the trigger levels, one per ratio.
type Thresholds struct {
	BTCDominance   decimal.Decimal
	ETHBTC         decimal.Decimal
	AltseasonIndex decimal.Decimal
	Total2T        decimal.Decimal
}

// NewThresholds converts configured float levels.
func NewThresholds(btcDominance, ethBTC, asi, total2T float64) Thresholds {
	return Thresholds{
		BTCDominance:   decimal.NewFromFloat(btcDominance),
		ETHBTC:         decimal.NewFromFloat(ethBTC),
		AltseasonIndex: decimal.NewFromFloat(asi),
		Total2T:        decimal.NewFromFloat(total2T),
	}
}

// Value wraps a float as a present reading value.
func Value(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// Check is the outcome of one rule.
type Check struct {
	Rule       Rule
	Comparison Comparison
	Value      decimal.NullDecimal
	Threshold  decimal.Decimal
	Pass       bool
}

// Present reports whether the rule took part in the vote.
func (c Check) Present() bool {
	return c.Value.Valid
}

// Summary is the combined verdict over a reading.
type Summary struct {
	AsOf        time.Time
	Checks      []Check
	Present     int
	Greens      int
	IsAltseason bool
}

// Check returns the check for a rule.
func (s Summary) Check(rule Rule) (Check, bool) {
	for _, c := range s.Checks {
		if c.Rule == rule {
			return c, true
		}
	}
	return Check{}, false
}

// Summarize applies every rule to the present ratios. The regime holds only
// when all present rules pass; with no ratios present it never holds.
func Summarize(r Reading, t Thresholds) Summary {
	checks := []Check{
		compare(RuleBTCDominance, Below, r.BTCDominance, t.BTCDominance),
		compare(RuleETHBTC, AtOrAbove, r.ETHBTC, t.ETHBTC),
		compare(RuleAltseasonIndex, AtOrAbove, r.AltseasonIndex, t.AltseasonIndex),
		compare(RuleTotal2, AtOrAbove, r.Total2T, t.Total2T),
	}

	s := Summary{AsOf: r.AsOf, Checks: checks, IsAltseason: true}
	for _, c := range checks {
		if !c.Present() {
			continue
		}
		s.Present++
		if c.Pass {
			s.Greens++
		} else {
			s.IsAltseason = false
		}
	}
	if s.Present == 0 {
		s.IsAltseason = false
	}
	return s
}

func compare(rule Rule, cmp Comparison, value decimal.NullDecimal, threshold decimal.Decimal) Check {
	c := Check{Rule: rule, Comparison: cmp, Value: value, Threshold: threshold}
	if !value.Valid {
		return c
	}
	switch cmp {
	case Below:
		c.Pass = value.Decimal.LessThan(threshold)
	case AtOrAbove:
		c.Pass = value.Decimal.GreaterThanOrEqual(threshold)
	}
	return c
}
