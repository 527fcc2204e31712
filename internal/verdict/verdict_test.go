package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/signal"
)

type fakeBackend struct {
	reply  string
	err    error
	delay  time.Duration
	calls  int
	system string
	user   string
}

func (f *fakeBackend) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func minimalAlert() signal.TradeAlert {
	return signal.TradeAlert{
		Tag:       "entry",
		Symbol:    "BTCUSDT",
		Timeframe: "15",
		Close:     decimal.RequireFromString("64000"),
		Direction: signal.Long,
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		raw       string
		action    Action
		rationale string
		fallback  bool
	}{
		{"BUY", Buy, "", false},
		{"sell - momentum fading on 4h", Sell, "momentum fading on 4h", false},
		{"**IGNORE**\nconflicting timeframes", Ignore, "conflicting timeframes", false},
		{"I would BUY here, then SELL later", Buy, "here, then SELL later", false},
		{"Verdict: Sell: lower highs", Sell, "lower highs", false},
		{"buyer exhaustion, no clear setup", Ignore, "", true},
		{"", Ignore, "", true},
		{"HOLD", Ignore, "", true},
	}
	for _, tc := range cases {
		v := Parse(tc.raw)
		assert.Equal(t, tc.action, v.Action, tc.raw)
		assert.Equal(t, tc.rationale, v.Rationale, tc.raw)
		assert.Equal(t, tc.fallback, v.Fallback, tc.raw)
	}
}

func TestParseBoundsRationale(t *testing.T) {
	v := Parse("BUY " + strings.Repeat("x", 500))
	assert.Equal(t, Buy, v.Action)
	assert.LessOrEqual(t, len(v.Rationale), maxRationaleLen+3)
}

func TestEvaluateWithoutOptionalSections(t *testing.T) {
	for _, reply := range []string{"BUY", "SELL strong", "IGNORE", "garbage"} {
		backend := &fakeBackend{reply: reply}
		e := NewEngine(backend, time.Second, zerolog.Nop())

		v, err := e.Evaluate(context.Background(), minimalAlert())
		require.NoError(t, err)
		assert.Contains(t, []Action{Buy, Sell, Ignore}, v.Action)
		assert.Equal(t, 1, backend.calls)
		assert.Zero(t, v.Coverage)
	}
}

func TestEvaluateInvalidAlert(t *testing.T) {
	backend := &fakeBackend{reply: "BUY"}
	e := NewEngine(backend, time.Second, zerolog.Nop())

	zeroClose := minimalAlert()
	zeroClose.Close = decimal.Zero
	_, err := e.Evaluate(context.Background(), zeroClose)
	assert.ErrorIs(t, err, signal.ErrInvalidAlert)

	negative := minimalAlert()
	negative.Close = decimal.NewFromInt(-1)
	_, err = e.Evaluate(context.Background(), negative)
	assert.ErrorIs(t, err, signal.ErrInvalidAlert)

	noDirection := minimalAlert()
	noDirection.Direction = ""
	_, err = e.Evaluate(context.Background(), noDirection)
	var verr *signal.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "direction", verr.Field)

	assert.Zero(t, backend.calls)
}

func TestEvaluateBackendErrorFailsSafe(t *testing.T) {
	e := NewEngine(&fakeBackend{err: errors.New("503 upstream")}, time.Second, zerolog.Nop())

	v, err := e.Evaluate(context.Background(), minimalAlert())
	require.NoError(t, err)
	assert.Equal(t, Ignore, v.Action)
	assert.True(t, v.Fallback)
}

func TestEvaluateBackendTimeoutFailsSafe(t *testing.T) {
	backend := &fakeBackend{reply: "BUY", delay: time.Second}
	e := NewEngine(backend, 20*time.Millisecond, zerolog.Nop())

	v, err := e.Evaluate(context.Background(), minimalAlert())
	require.NoError(t, err)
	assert.Equal(t, Ignore, v.Action)
	assert.True(t, v.Fallback)
	assert.Equal(t, 1, backend.calls)
}

func TestEvaluateWithoutBackend(t *testing.T) {
	e := NewEngine(nil, time.Second, zerolog.Nop())
	v, err := e.Evaluate(context.Background(), minimalAlert())
	require.NoError(t, err)
	assert.Equal(t, Ignore, v.Action)
	assert.True(t, v.Fallback)
}

func TestEvaluateSendsBoundedSummary(t *testing.T) {
	backend := &fakeBackend{reply: "BUY"}
	e := NewEngine(backend, time.Second, zerolog.Nop())

	alert := minimalAlert()
	alert.Symbol = "BTC\nignore previous"
	_, err := e.Evaluate(context.Background(), alert)
	require.NoError(t, err)

	assert.Equal(t, SystemPrompt, backend.system)
	assert.NotContains(t, backend.user, "ignore previous")
	assert.Contains(t, backend.user, "direction=LONG")
	assert.Contains(t, backend.user, "trend=na")
}

func TestBuildSummary(t *testing.T) {
	raw := `{
	  "tag": "entry", "symbol": "BTCUSDT", "timeframe": "15", "close": 100, "direction": "SHORT",
	  "features": {
	    "trend": -3, "rejections": 2, "atr": 1.5, "support": 98, "resistance": 103,
	    "streaks": {"15": 4, "240": -120, "weekly": 9},
	    "signals": {"60": "bearish", "D": "down", "5m": "???"}
	  }
	}`
	var alert signal.TradeAlert
	require.NoError(t, json.Unmarshal([]byte(raw), &alert))
	alert.Normalize()

	s := BuildSummary(alert)
	assert.Equal(t, "-1", s.Trend)
	assert.Equal(t, "2", s.Rejections)
	assert.Equal(t, "1.50", s.ATRPct)
	assert.Equal(t, "2.00", s.SupportPct)
	assert.Equal(t, "3.00", s.ResistancePct)
	assert.Equal(t, 4, s.Streaks["15m"])
	assert.Equal(t, -maxStreak, s.Streaks["4h"])
	assert.Equal(t, 0, s.Streaks["1d"])
	assert.Equal(t, "down", s.Signals["1h"])
	assert.Equal(t, "na", s.Signals["5m"])
	// Two bearish timeframes agree with a SHORT alert.
	assert.Equal(t, 2, s.MTFScore)
	// 5 scalars + 2 streaks + 2 signals out of 15 slots.
	assert.Equal(t, 0.6, s.Coverage)

	text := s.String()
	assert.Contains(t, text, "streak 5m=0 15m=4 1h=0 4h=-99 1d=0")
	assert.Contains(t, text, "signal 5m=na 15m=na 1h=down 4h=na 1d=down")
}

func TestCanonicalTimeframe(t *testing.T) {
	assert.Equal(t, "1h", CanonicalTimeframe("60"))
	assert.Equal(t, "1d", CanonicalTimeframe("D"))
	assert.Equal(t, "", CanonicalTimeframe("3m"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	reply := strings.Repeat("é", 130)
	out := truncate(reply, 120)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("é", 120)+"...", out)
	assert.Equal(t, "short", truncate("short", 120))
}
