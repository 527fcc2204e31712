// Package signal models inbound TradingView alerts.
package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side an alert proposes.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Exit tags emitted by the charting strategy when a position closes.
const (
	TagTPHit = "tp_hit"
	TagSLHit = "sl_hit"
)

// TradeAlert is one inbound webhook event. It is validated, evaluated once and
// discarded.
type TradeAlert struct {
	Tag       string          `json:"tag" validate:"required,max=64"`
	Symbol    string          `json:"symbol" validate:"required,max=32"`
	Timeframe string          `json:"timeframe" validate:"required,max=16"`
	Timestamp EpochMillis     `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
	Direction Direction       `json:"direction" validate:"required,oneof=LONG SHORT"`
	Features  *Features       `json:"features,omitempty"`
	Levels    *Levels         `json:"levels,omitempty"`
	Secret    string          `json:"secret,omitempty"`
}

// Features is a sparse indicator set. Every field may be absent.
type Features struct {
	Trend      decimal.NullDecimal        `json:"trend"`
	Rejections decimal.NullDecimal        `json:"rejections"`
	ATR        decimal.NullDecimal        `json:"atr"`
	Support    decimal.NullDecimal        `json:"support"`
	Resistance decimal.NullDecimal        `json:"resistance"`
	Streaks    map[string]decimal.Decimal `json:"streaks,omitempty"`
	Signals    map[string]string          `json:"signals,omitempty"`
}

// Levels are advisory stop-loss and take-profit prices.
type Levels struct {
	SL  decimal.NullDecimal `json:"sl"`
	TP1 decimal.NullDecimal `json:"tp1"`
	TP2 decimal.NullDecimal `json:"tp2"`
	TP3 decimal.NullDecimal `json:"tp3"`
}

// IsExit reports whether the alert announces a closed position rather than a
// new entry.
func (a TradeAlert) IsExit() bool {
	switch strings.ToLower(a.Tag) {
	case TagTPHit, TagSLHit:
		return true
	default:
		return false
	}
}

// Normalize trims identifiers and upper-cases the symbol and direction.
func (a *TradeAlert) Normalize() {
	a.Tag = strings.TrimSpace(a.Tag)
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	a.Timeframe = strings.TrimSpace(a.Timeframe)
	a.Direction = Direction(strings.ToUpper(strings.TrimSpace(string(a.Direction))))
}

// EpochMillis accepts a JSON number or a quoted integer.
type EpochMillis int64

// UnmarshalJSON implements json.Unmarshaler.
func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			*e = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be epoch milliseconds: %w", err)
	}
	*e = EpochMillis(n)
	return nil
}
