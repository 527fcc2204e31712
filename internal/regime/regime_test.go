package regime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int32
}

func (s *recordingSink) SendText(ctx context.Context, text string) error {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func baseline() Thresholds {
	return NewThresholds(55, 0.045, 75, 1.78)
}

func altseasonReading() Reading {
	return Reading{
		BTCDominance:   Value(50),
		ETHBTC:         Value(0.05),
		AltseasonIndex: Value(80),
		Total2T:        Value(1.9),
	}
}

func newEngine(sink Sink) *Engine {
	return NewEngine(sink, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
}

func TestSummarizeAltseasonScenario(t *testing.T) {
	s := Summarize(altseasonReading(), baseline())
	assert.True(t, s.IsAltseason)
	assert.Equal(t, 4, s.Present)
	assert.Equal(t, 4, s.Greens)

	r := altseasonReading()
	r.BTCDominance = Value(60)
	s = Summarize(r, baseline())
	assert.False(t, s.IsAltseason)
	assert.Equal(t, 3, s.Greens)
	dom, ok := s.Check(RuleBTCDominance)
	require.True(t, ok)
	assert.False(t, dom.Pass)
}

func TestSummarizeConjunctionFlipsOnAnySingleRule(t *testing.T) {
	flips := map[Rule]func(*Reading){
		RuleBTCDominance:   func(r *Reading) { r.BTCDominance = Value(55) },
		RuleETHBTC:         func(r *Reading) { r.ETHBTC = Value(0.0449) },
		RuleAltseasonIndex: func(r *Reading) { r.AltseasonIndex = Value(74) },
		RuleTotal2:         func(r *Reading) { r.Total2T = Value(1.5) },
	}
	for rule, flip := range flips {
		t.Run(string(rule), func(t *testing.T) {
			r := altseasonReading()
			flip(&r)
			assert.False(t, Summarize(r, baseline()).IsAltseason)
		})
	}
}

func TestSummarizeBoundaries(t *testing.T) {
	r := Reading{
		BTCDominance:   Value(54.99),
		ETHBTC:         Value(0.045),
		AltseasonIndex: Value(75),
		Total2T:        Value(1.78),
	}
	s := Summarize(r, baseline())
	assert.True(t, s.IsAltseason, "at-threshold values pass for at-or-above rules")

	r.BTCDominance = Value(55)
	assert.False(t, Summarize(r, baseline()).IsAltseason, "dominance must be strictly below")
}

func TestSummarizeAbsentRatiosAreExcluded(t *testing.T) {
	r := Reading{BTCDominance: Value(50), AltseasonIndex: Value(90)}
	s := Summarize(r, baseline())
	assert.True(t, s.IsAltseason)
	assert.Equal(t, 2, s.Present)

	eth, _ := s.Check(RuleETHBTC)
	assert.False(t, eth.Present())
	assert.False(t, eth.Pass)
}

func TestSummarizeNoData(t *testing.T) {
	s := Summarize(Reading{}, baseline())
	assert.False(t, s.IsAltseason)
	assert.Zero(t, s.Present)
}

func TestEvaluateNoDataNeverNotifies(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)
	state := RestoreState(true, time.Time{})

	res := e.Evaluate(context.Background(), Reading{}, baseline(), state, true)
	assert.False(t, res.Summary.IsAltseason)
	assert.False(t, res.Notified)
	assert.False(t, res.Attempted)
	assert.ErrorIs(t, res.Err, ErrNoData)
	assert.Zero(t, sink.count())
	assert.True(t, state.Snapshot().Last, "no-data evaluations leave the state untouched")
}

func TestEvaluateDebounce(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)
	state := NewState()

	first := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
	assert.True(t, first.Notified)
	assert.True(t, first.Transitioned)

	second := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
	assert.False(t, second.Notified)
	assert.False(t, second.Attempted)
	assert.NoError(t, second.Err)
	assert.Equal(t, 1, sink.count())

	forced := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, true)
	assert.True(t, forced.Notified)
	assert.False(t, forced.Transitioned)
	assert.Equal(t, 2, sink.count())
	assert.Contains(t, sink.texts[1], "(forced)")
}

func TestEvaluateInitialFalseDoesNotNotify(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)

	r := altseasonReading()
	r.BTCDominance = Value(60)
	res := e.Evaluate(context.Background(), r, baseline(), NewState(), false)
	assert.False(t, res.Summary.IsAltseason)
	assert.False(t, res.Attempted)
	assert.Zero(t, sink.count())
}

func TestEvaluateNotifiesOnEachTransition(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)
	state := NewState()

	off := altseasonReading()
	off.ETHBTC = Value(0.03)

	sequence := []Reading{altseasonReading(), altseasonReading(), off, off, altseasonReading()}
	for _, r := range sequence {
		e.Evaluate(context.Background(), r, baseline(), state, false)
	}
	assert.Equal(t, 3, sink.count())
}

func TestEvaluateDeliveryFailureStillRecordsState(t *testing.T) {
	sink := &recordingSink{err: errors.New("telegram down")}
	e := newEngine(sink)
	state := NewState()

	res := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
	assert.True(t, res.Attempted)
	assert.False(t, res.Notified)
	assert.EqualError(t, res.Err, "telegram down")

	snap := state.Snapshot()
	assert.True(t, snap.Last)
	assert.Equal(t, fixedNow, snap.LastNotifiedAt)

	again := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
	assert.False(t, again.Attempted, "an attempted transition is not retried")
}

func TestEvaluateWithoutSink(t *testing.T) {
	e := newEngine(nil)
	state := NewState()

	res := e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
	assert.True(t, res.Attempted)
	assert.False(t, res.Notified)
	assert.ErrorIs(t, res.Err, ErrNoSink)
	assert.True(t, state.Snapshot().Last)
}

func TestEvaluateConcurrentSingleTransition(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)
	state := NewState()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Evaluate(context.Background(), altseasonReading(), baseline(), state, false)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sink.count())
}

func TestEvaluateMessage(t *testing.T) {
	sink := &recordingSink{}
	e := newEngine(sink)

	r := altseasonReading()
	r.AltseasonIndex = decimal.NullDecimal{}
	e.Evaluate(context.Background(), r, baseline(), NewState(), false, WithMessage("manual check"))

	require.Equal(t, 1, sink.count())
	text := sink.texts[0]
	assert.Contains(t, text, "manual check\n\n[Altseason] 2026-10-17T12:00:00Z")
	assert.Contains(t, text, "ALTSEASON_ON: YES (greens 3/3)")
	assert.Contains(t, text, "BTC dominance %: 50 < 55 OK")
	assert.Contains(t, text, "ETH/BTC: 0.05 >= 0.045 OK")
	assert.Contains(t, text, "Altseason index: n/a")
	assert.Contains(t, text, "TOTAL2 (T USD): 1.9 >= 1.78 OK")
}

func TestSummaryView(t *testing.T) {
	r := altseasonReading()
	r.Total2T = decimal.NullDecimal{}
	r.AsOf = fixedNow

	raw, err := json.Marshal(Summarize(r, baseline()).View())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, true, out["is_altseason"])
	ratios := out["ratios"].(map[string]any)
	assert.Equal(t, 50.0, ratios["btc_dominance"])
	assert.Nil(t, ratios["total2_trillions"])
	triggers := out["triggers"].(map[string]any)
	assert.Equal(t, true, triggers["eth_btc"])
	assert.Nil(t, triggers["total2_trillions"])
	assert.Equal(t, 1.78, out["thresholds"].(map[string]any)["total2_trillions"])
}
