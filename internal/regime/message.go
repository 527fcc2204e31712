package regime

import (
	"fmt"
	"strings"
	"time"
)

var ruleLabels = map[Rule]string{
	RuleBTCDominance:   "BTC dominance %",
	RuleETHBTC:         "ETH/BTC",
	RuleAltseasonIndex: "Altseason index",
	RuleTotal2:         "TOTAL2 (T USD)",
}

// Label returns a human readable rule name.
func (r Rule) Label() string {
	if l, ok := ruleLabels[r]; ok {
		return l
	}
	return string(r)
}

// Operator renders the comparison symbol.
func (c Comparison) Operator() string {
	if c == Below {
		return "<"
	}
	return ">="
}

// RenderMessage formats a summary for the chat sink.
func RenderMessage(s Summary, forced bool, note string) string {
	builder := strings.Builder{}
	if note = strings.TrimSpace(note); note != "" {
		builder.WriteString(note)
		builder.WriteString("\n\n")
	}
	builder.WriteString(fmt.Sprintf("[Altseason] %s\n", s.AsOf.UTC().Format(time.RFC3339)))
	state := "NO"
	if s.IsAltseason {
		state = "YES"
	}
	builder.WriteString(fmt.Sprintf("ALTSEASON_ON: %s (greens %d/%d)\n", state, s.Greens, s.Present))
	for _, c := range s.Checks {
		if !c.Present() {
			builder.WriteString(fmt.Sprintf("%s: n/a\n", c.Rule.Label()))
			continue
		}
		mark := "FAIL"
		if c.Pass {
			mark = "OK"
		}
		builder.WriteString(fmt.Sprintf("%s: %s %s %s %s\n",
			c.Rule.Label(), c.Value.Decimal.String(), c.Comparison.Operator(), c.Threshold.String(), mark))
	}
	if forced {
		builder.WriteString("(forced)\n")
	}
	return strings.TrimRight(builder.String(), "\n")
}
