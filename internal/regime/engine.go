package regime

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoData is reported when a reading carries no ratio at all.
var ErrNoData = errors.New("no regime ratios available")

// ErrNoSink is reported when a notification is due but nothing can deliver it.
var ErrNoSink = errors.New("notification sink not configured")

// DefaultNotifyTimeout bounds one delivery attempt.
const DefaultNotifyTimeout = 10 * time.Second

// Sink delivers a rendered notification.
type Sink interface {
	SendText(ctx context.Context, text string) error
}

// Result describes one evaluation.
type Result struct {
	Summary      Summary
	Attempted    bool
	Transitioned bool
	Forced       bool
	Notified     bool
	Err          error
}

// Engine applies the conjunction and debounce policy.
type Engine struct {
	sink    Sink
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithNotifyTimeout overrides the delivery timeout.
func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine constructs the engine. sink may be nil.
func NewEngine(sink Sink, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		sink:    sink,
		timeout: DefaultNotifyTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("component", "regime_engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NotifyOption customises one evaluation.
type NotifyOption func(*notifyParams)

type notifyParams struct {
	message string
}

// WithMessage prepends an operator note to the notification.
func WithMessage(msg string) NotifyOption {
	return func(p *notifyParams) {
		p.message = msg
	}
}

// Evaluate summarises the reading and notifies on a regime transition or when
// forced. A reading without any ratio never notifies, forced or not. The state
// is updated before the sink is called and regardless of delivery outcome.
func (e *Engine) Evaluate(ctx context.Context, reading Reading, thresholds Thresholds, state *State, force bool, opts ...NotifyOption) Result {
	var params notifyParams
	for _, opt := range opts {
		opt(&params)
	}

	now := e.now()
	if reading.AsOf.IsZero() {
		reading.AsOf = now
	}

	summary := Summarize(reading, thresholds)
	res := Result{Summary: summary, Forced: force}

	if summary.Present == 0 {
		e.logger.Warn().Bool("force", force).Msg("no regime ratios present; skipping notification")
		res.Err = ErrNoData
		return res
	}

	attempt, transitioned := state.claim(summary.IsAltseason, force, now)
	res.Attempted = attempt
	res.Transitioned = transitioned
	if !attempt {
		e.logger.Debug().Bool("is_altseason", summary.IsAltseason).Msg("regime unchanged; notification suppressed")
		return res
	}

	text := RenderMessage(summary, force, params.message)
	if e.sink == nil {
		res.Err = ErrNoSink
		e.logger.Warn().Bool("is_altseason", summary.IsAltseason).Msg("regime notification due but no sink configured")
		return res
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.sink.SendText(sendCtx, text); err != nil {
		res.Err = err
		e.logger.Error().Err(err).Bool("is_altseason", summary.IsAltseason).Msg("regime notification failed")
		return res
	}

	res.Notified = true
	e.logger.Info().
		Bool("is_altseason", summary.IsAltseason).
		Bool("transitioned", transitioned).
		Bool("force", force).
		Int("greens", summary.Greens).
		Int("present", summary.Present).
		Msg("regime notification sent")
	return res
}
