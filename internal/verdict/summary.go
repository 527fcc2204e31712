package verdict

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal-bridge/internal/signal"
)

// Timeframes is the fixed set of per-timeframe slots forwarded to the backend.
var Timeframes = []string{"5m", "15m", "1h", "4h", "1d"}

const (
	maxSymbolLen    = 24
	maxTimeframeLen = 8
	maxStreak       = 99
	scalarFeatures  = 5
)

var hundred = decimal.NewFromInt(100)

// Summary is the compact, bounded view of an alert sent to the backend.
type Summary struct {
	Symbol        string
	Timeframe     string
	Direction     signal.Direction
	Price         decimal.Decimal
	Trend         string
	Rejections    string
	ATRPct        string
	SupportPct    string
	ResistancePct string
	Streaks       map[string]int
	Signals       map[string]string
	MTFScore      int
	Coverage      float64
}

// BuildSummary reduces an alert to short numeric/textual tokens. Missing
// features become "na" and missing timeframe slots are neutral.
func BuildSummary(a signal.TradeAlert) Summary {
	s := Summary{
		Symbol:        clean(a.Symbol, maxSymbolLen, ":._/-"),
		Timeframe:     clean(a.Timeframe, maxTimeframeLen, ""),
		Direction:     a.Direction,
		Price:         a.Close,
		Trend:         "na",
		Rejections:    "na",
		ATRPct:        "na",
		SupportPct:    "na",
		ResistancePct: "na",
		Streaks:       make(map[string]int, len(Timeframes)),
		Signals:       make(map[string]string, len(Timeframes)),
	}

	present := 0
	f := a.Features
	if f == nil {
		f = &signal.Features{}
	}

	if f.Trend.Valid {
		present++
		s.Trend = signToken(f.Trend.Decimal.Sign())
	}
	if f.Rejections.Valid {
		present++
		n := f.Rejections.Decimal.IntPart()
		if n < 0 {
			n = 0
		}
		if n > maxStreak {
			n = maxStreak
		}
		s.Rejections = fmt.Sprintf("%d", n)
	}
	if f.ATR.Valid {
		present++
		s.ATRPct = pct(f.ATR.Decimal.Abs(), a.Close)
	}
	if f.Support.Valid {
		present++
		s.SupportPct = pct(a.Close.Sub(f.Support.Decimal), a.Close)
	}
	if f.Resistance.Valid {
		present++
		s.ResistancePct = pct(f.Resistance.Decimal.Sub(a.Close), a.Close)
	}

	streaks := canonicalStreaks(f.Streaks)
	signals := canonicalSignals(f.Signals)
	for _, tf := range Timeframes {
		if v, ok := streaks[tf]; ok {
			present++
			s.Streaks[tf] = v
		} else {
			s.Streaks[tf] = 0
		}
		if v, ok := signals[tf]; ok {
			present++
			s.Signals[tf] = v
			s.MTFScore += signalScore(v)
		} else {
			s.Signals[tf] = "na"
		}
	}

	if a.Direction == signal.Short {
		s.MTFScore = -s.MTFScore
	}

	total := scalarFeatures + 2*len(Timeframes)
	s.Coverage = decimal.NewFromInt(int64(present)).Div(decimal.NewFromInt(int64(total))).Round(2).InexactFloat64()
	return s
}

// String renders the summary as the user message.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol=%s tf=%s\n", s.Symbol, s.Timeframe)
	fmt.Fprintf(&b, "direction=%s\n", s.Direction)
	fmt.Fprintf(&b, "price=%s\n", s.Price.String())
	fmt.Fprintf(&b, "trend=%s\n", s.Trend)
	fmt.Fprintf(&b, "rejections=%s\n", s.Rejections)
	fmt.Fprintf(&b, "atr_pct=%s\n", s.ATRPct)
	fmt.Fprintf(&b, "support_dist_pct=%s\n", s.SupportPct)
	fmt.Fprintf(&b, "resistance_dist_pct=%s\n", s.ResistancePct)

	streaks := make([]string, 0, len(Timeframes))
	signals := make([]string, 0, len(Timeframes))
	for _, tf := range Timeframes {
		streaks = append(streaks, fmt.Sprintf("%s=%d", tf, s.Streaks[tf]))
		signals = append(signals, fmt.Sprintf("%s=%s", tf, s.Signals[tf]))
	}
	fmt.Fprintf(&b, "streak %s\n", strings.Join(streaks, " "))
	fmt.Fprintf(&b, "signal %s\n", strings.Join(signals, " "))
	fmt.Fprintf(&b, "mtf_alignment=%d\n", s.MTFScore)
	fmt.Fprintf(&b, "coverage=%.2f", s.Coverage)
	return b.String()
}

func pct(num, base decimal.Decimal) string {
	if !base.IsPositive() {
		return "na"
	}
	return num.Div(base).Mul(hundred).StringFixed(2)
}

func signToken(sign int) string {
	switch {
	case sign > 0:
		return "+1"
	case sign < 0:
		return "-1"
	default:
		return "0"
	}
}

func clean(raw string, limit int, extra string) string {
	var b strings.Builder
	for _, r := range raw {
		if b.Len() >= limit {
			break
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(extra, r):
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "na"
	}
	return b.String()
}

// CanonicalTimeframe maps chart notations ("15", "60", "240", "D") onto the
// fixed slot names. Unknown notations return "".
func CanonicalTimeframe(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "5", "5m", "5min":
		return "5m"
	case "15", "15m", "15min":
		return "15m"
	case "60", "1h", "h", "1hr":
		return "1h"
	case "240", "4h", "4hr":
		return "4h"
	case "d", "1d", "1440", "day", "daily":
		return "1d"
	default:
		return ""
	}
}

func canonicalStreaks(in map[string]decimal.Decimal) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		tf := CanonicalTimeframe(k)
		if tf == "" {
			continue
		}
		n := v.IntPart()
		if n > maxStreak {
			n = maxStreak
		}
		if n < -maxStreak {
			n = -maxStreak
		}
		out[tf] = int(n)
	}
	return out
}

func canonicalSignals(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		tf := CanonicalTimeframe(k)
		if tf == "" {
			continue
		}
		if token := signalToken(v); token != "" {
			out[tf] = token
		}
	}
	return out
}

func signalToken(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "bull", "bullish", "long", "buy", "1", "+1":
		return "up"
	case "down", "bear", "bearish", "short", "sell", "-1":
		return "down"
	case "flat", "neutral", "0":
		return "flat"
	default:
		return ""
	}
}

func signalScore(token string) int {
	switch token {
	case "up":
		return 1
	case "down":
		return -1
	default:
		return 0
	}
}
