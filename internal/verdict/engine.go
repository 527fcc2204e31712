// Package verdict turns a trade alert into a BUY/SELL/IGNORE decision by
// consulting a reasoning backend, failing safe to IGNORE.
package verdict

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"signal-bridge/internal/signal"
)

// SystemPrompt constrains the backend to the three tokens.
const SystemPrompt = `You are a disciplined crypto trade filter. You receive a compact feature summary of one TradingView alert.
Answer with exactly one word on the first line: BUY, SELL or IGNORE.
Optionally add one short line of rationale after it. Never add anything else.
BUY only confirms a LONG alert and SELL only confirms a SHORT alert; answer IGNORE when evidence is weak, conflicting or missing.`

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 8 * time.Second

// Completer is the reasoning backend: one system + user message in, raw text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Engine evaluates alerts. It is safe for concurrent use.
type Engine struct {
	backend Completer
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEngine constructs the verdict engine. A nil backend makes every verdict
// a fallback IGNORE.
func NewEngine(backend Completer, timeout time.Duration, logger zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		backend: backend,
		timeout: timeout,
		logger:  logger.With().Str("component", "verdict_engine").Logger(),
	}
}

// Evaluate validates the alert and asks the backend once. Only validation
// failures are returned as errors; backend failures yield IGNORE.
func (e *Engine) Evaluate(ctx context.Context, alert signal.TradeAlert) (Verdict, error) {
	alert.Normalize()
	if err := alert.Validate(); err != nil {
		return Verdict{}, err
	}

	summary := BuildSummary(alert)
	log := e.logger.With().Str("symbol", summary.Symbol).Str("timeframe", summary.Timeframe).Logger()

	if e.backend == nil {
		log.Warn().Msg("reasoning backend not configured; ignoring alert")
		return Verdict{Action: Ignore, Fallback: true, Coverage: summary.Coverage}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.backend.Complete(callCtx, SystemPrompt, summary.String())
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("reasoning backend unavailable; ignoring alert")
		return Verdict{Action: Ignore, Fallback: true, Coverage: summary.Coverage}, nil
	}

	v := Parse(raw)
	v.Coverage = summary.Coverage
	if v.Fallback {
		log.Warn().Str("reply", truncate(raw, 120)).Msg("unparsable backend reply; ignoring alert")
	}
	log.Info().
		Str("verdict", string(v.Action)).
		Bool("fallback", v.Fallback).
		Float64("coverage", v.Coverage).
		Dur("elapsed", time.Since(start)).
		Msg("verdict produced")
	return v, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
