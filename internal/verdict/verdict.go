package verdict

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Action is the bounded classification of a trade alert.
type Action string

const (
	Buy    Action = "BUY"
	Sell   Action = "SELL"
	Ignore Action = "IGNORE"
)

const maxRationaleLen = 200

// Verdict is the immutable result of evaluating one alert.
type Verdict struct {
	Action    Action  `json:"verdict"`
	Rationale string  `json:"rationale,omitempty"`
	Fallback  bool    `json:"fallback"`
	Coverage  float64 `json:"coverage"`
}

// Actionable reports whether the verdict asks for a trade.
func (v Verdict) Actionable() bool {
	return v.Action == Buy || v.Action == Sell
}

var tokenPattern = regexp.MustCompile(`(?i)\b(BUY|SELL|IGNORE)\b`)

// Parse extracts the first BUY/SELL/IGNORE token from a backend reply. It is
// defined for every input: text without a token yields a fallback IGNORE.
func Parse(raw string) Verdict {
	loc := tokenPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Verdict{Action: Ignore, Fallback: true}
	}
	action := Action(strings.ToUpper(raw[loc[2]:loc[3]]))
	return Verdict{Action: action, Rationale: rationale(raw[loc[1]:])}
}

func rationale(rest string) string {
	rest = strings.TrimLeft(rest, " \t*_`:;,.|-–—")
	line := ""
	for _, candidate := range strings.Split(rest, "\n") {
		candidate = strings.TrimSpace(strings.Trim(strings.TrimSpace(candidate), "*_`"))
		if candidate != "" {
			line = candidate
			break
		}
	}
	if utf8.RuneCountInString(line) > maxRationaleLen {
		line = string([]rune(line)[:maxRationaleLen]) + "..."
	}
	return line
}
