// Package service orchestrates the verdict and regime engines for the HTTP
// and CLI surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-bridge/internal/alerting"
	"signal-bridge/internal/config"
	"signal-bridge/internal/fetcher"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/regime"
	"signal-bridge/internal/signal"
	"signal-bridge/internal/verdict"
)

const forwardTimeout = 10 * time.Second

// Dependencies groups the collaborators of a Service. Notifier, Fetcher and
// the probes may be nil.
type Dependencies struct {
	Verdicts *verdict.Engine
	Regime   *regime.Engine
	State    *regime.State
	Fetcher  fetcher.ReadingFetcher
	Notifier alerting.Notifier
	Resolver *config.Resolver
	Metrics  *metrics.Recorder
	LLM      Pinger
	Telegram BotPinger
	Warnings []string
}

// Service is safe for concurrent use; the regime state is its only shared
// mutable resource.
type Service struct {
	verdicts *verdict.Engine
	regime   *regime.Engine
	state    *regime.State
	fetcher  fetcher.ReadingFetcher
	notifier alerting.Notifier
	resolver *config.Resolver
	metrics  *metrics.Recorder
	llm      Pinger
	telegram BotPinger
	warnings []string
	logger   zerolog.Logger
}

// New constructs the bridge service.
func New(deps Dependencies, logger zerolog.Logger) *Service {
	state := deps.State
	if state == nil {
		state = regime.NewState()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = config.NewResolver(nil, logger)
	}
	engine := deps.Regime
	if engine == nil {
		var sink regime.Sink
		if deps.Notifier != nil {
			sink = deps.Notifier
		}
		engine = regime.NewEngine(sink, logger)
	}
	verdicts := deps.Verdicts
	if verdicts == nil {
		verdicts = verdict.NewEngine(nil, 0, logger)
	}

	return &Service{
		verdicts: verdicts,
		regime:   engine,
		state:    state,
		fetcher:  deps.Fetcher,
		notifier: deps.Notifier,
		resolver: resolver,
		metrics:  deps.Metrics,
		llm:      deps.LLM,
		telegram: deps.Telegram,
		warnings: deps.Warnings,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// HandleAlert produces the verdict for one inbound alert. Exit events skip
// the reasoning backend. Only validation failures are returned as errors.
func (s *Service) HandleAlert(ctx context.Context, alert signal.TradeAlert) (verdict.Verdict, error) {
	alert.Normalize()

	var (
		v   verdict.Verdict
		err error
	)
	if alert.IsExit() {
		if err = alert.Validate(); err == nil {
			v = verdict.Verdict{Action: verdict.Ignore, Rationale: "exit event"}
			s.logger.Info().Str("symbol", alert.Symbol).Str("tag", alert.Tag).Msg("exit event received")
		}
	} else {
		start := time.Now()
		v, err = s.verdicts.Evaluate(ctx, alert)
		s.metrics.RecordLatency("verdict", time.Since(start).Seconds())
	}
	if err != nil {
		s.metrics.RecordRejected("invalid")
		return verdict.Verdict{}, err
	}

	s.metrics.RecordVerdict(string(v.Action), v.Fallback)
	if v.Actionable() || alert.IsExit() {
		s.forward(ctx, alert, v)
	}
	return v, nil
}

func (s *Service) forward(ctx context.Context, alert signal.TradeAlert, v verdict.Verdict) {
	if s.notifier == nil || !s.resolver.Bool(config.KeyForwardVerdicts, false) {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	if err := s.notifier.SendText(sendCtx, renderForward(alert, v)); err != nil {
		s.logger.Error().Err(err).Str("symbol", alert.Symbol).Msg("failed to forward verdict")
	}
}

// Thresholds resolves the regime thresholds for this request.
func (s *Service) Thresholds() regime.Thresholds {
	return regime.NewThresholds(
		s.resolver.Float(config.KeyBTCDominanceThr, config.DefaultBTCDominanceThr),
		s.resolver.Float(config.KeyETHBTCThr, config.DefaultETHBTCThr),
		s.resolver.Float(config.KeyASIThr, config.DefaultASIThr),
		s.resolver.Float(config.KeyTotal2ThrT, config.DefaultTotal2ThrT),
	)
}

// CheckRegime fetches a live reading and summarises it without notifying.
// The returned error describes failed sources; the summary is still usable.
func (s *Service) CheckRegime(ctx context.Context) (regime.Summary, error) {
	reading, err := s.fetch(ctx)
	summary := regime.Summarize(reading, s.Thresholds())
	s.metrics.RecordRegime(summary.IsAltseason, ratios(summary))
	return summary, err
}

// NotifyOutcome is the result of one notify flow.
type NotifyOutcome struct {
	regime.Result
	FetchErr error
}

// NotifyRegime fetches a live reading and runs the debounced notify flow.
func (s *Service) NotifyRegime(ctx context.Context, force bool, message string) NotifyOutcome {
	reading, fetchErr := s.fetch(ctx)
	return NotifyOutcome{Result: s.EvaluateReading(ctx, reading, force, message), FetchErr: fetchErr}
}

// EvaluateReading runs the notify flow over a supplied reading.
func (s *Service) EvaluateReading(ctx context.Context, reading regime.Reading, force bool, message string) regime.Result {
	res := s.regime.Evaluate(ctx, reading, s.Thresholds(), s.state, force, regime.WithMessage(message))

	s.metrics.RecordRegime(res.Summary.IsAltseason, ratios(res.Summary))
	switch {
	case errors.Is(res.Err, regime.ErrNoData):
		s.metrics.RecordNotification(metrics.OutcomeNoData)
	case !res.Attempted:
		s.metrics.RecordNotification(metrics.OutcomeSuppressed)
	case res.Notified:
		s.metrics.RecordNotification(metrics.OutcomeSent)
	default:
		s.metrics.RecordNotification(metrics.OutcomeFailed)
	}
	return res
}

// Tick runs one unforced notify cycle for the periodic watch.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	out := s.NotifyRegime(ctx, false, "")
	if out.Err != nil {
		return fmt.Errorf("regime watch at %s: %w", bucket.Format(time.RFC3339), errors.Join(out.Err, out.FetchErr))
	}
	if out.FetchErr != nil {
		s.logger.Warn().Err(out.FetchErr).Time("bucket", bucket).Msg("regime watch used a partial reading")
	}
	return nil
}

// State returns a snapshot of the regime state.
func (s *Service) State() regime.Snapshot {
	return s.state.Snapshot()
}

func (s *Service) fetch(ctx context.Context) (regime.Reading, error) {
	if s.fetcher == nil {
		return regime.Reading{AsOf: time.Now().UTC()}, errors.New("market data fetcher not configured")
	}
	start := time.Now()
	reading, err := s.fetcher.FetchReading(ctx)
	s.metrics.RecordLatency("market_fetch", time.Since(start).Seconds())
	return reading, err
}

func ratios(summary regime.Summary) map[string]float64 {
	out := make(map[string]float64, len(summary.Checks))
	for _, c := range summary.Checks {
		if c.Present() {
			out[string(c.Rule)] = c.Value.Decimal.InexactFloat64()
		}
	}
	return out
}

func renderForward(alert signal.TradeAlert, v verdict.Verdict) string {
	builder := strings.Builder{}
	if alert.IsExit() {
		label := "TP HIT"
		if strings.EqualFold(alert.Tag, signal.TagSLHit) {
			label = "SL HIT"
		}
		builder.WriteString(fmt.Sprintf("[%s] %s %s %s\n", label, alert.Symbol, alert.Timeframe, alert.Direction))
		builder.WriteString(fmt.Sprintf("Close: %s\n", alert.Close.String()))
	} else {
		builder.WriteString(fmt.Sprintf("[%s] %s %s %s\n", v.Action, alert.Symbol, alert.Timeframe, alert.Direction))
		builder.WriteString(fmt.Sprintf("Close: %s\n", alert.Close.String()))
		if v.Rationale != "" {
			builder.WriteString(v.Rationale)
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("Coverage: %.2f\n", v.Coverage))
	}
	if lv := alert.Levels; lv != nil {
		names := []string{"SL", "TP1", "TP2", "TP3"}
		for i, level := range []decimal.NullDecimal{lv.SL, lv.TP1, lv.TP2, lv.TP3} {
			if level.Valid {
				builder.WriteString(fmt.Sprintf("%s: %s\n", names[i], level.Decimal.String()))
			}
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}
