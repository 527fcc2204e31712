package service

import (
	"context"
	"os"
	"strings"
	"time"

	"signal-bridge/internal/alerting"
	"signal-bridge/internal/config"
)

const probeTimeout = 8 * time.Second

// Pinger checks reachability of the reasoning backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BotPinger checks the Telegram bot credentials.
type BotPinger interface {
	Ping(ctx context.Context) (alerting.BotInfo, error)
}

// ProbeResult is the outcome of one diagnostic probe.
type ProbeResult struct {
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// EnvReport lists which options are set, never their values.
type EnvReport struct {
	Present    map[string]bool    `json:"present"`
	Thresholds map[string]float64 `json:"thresholds"`
	Model      string             `json:"openai_model"`
	Forwarding bool               `json:"forward_verdicts"`
	Warnings   []string           `json:"warnings,omitempty"`
}

var sanityVars = []string{
	"WEBHOOK_SECRET",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"TELEGRAM_TOKEN",
	"TELEGRAM_CHAT",
	"ALT_BTC_DOM_THR",
	"ALT_ETH_BTC_THR",
	"ALT_ASI_THR",
	"ALT_TOTAL2_THR_T",
}

// EnvSanity reports the effective configuration surface.
func (s *Service) EnvSanity() EnvReport {
	present := make(map[string]bool, len(sanityVars))
	for _, name := range sanityVars {
		v, ok := os.LookupEnv(name)
		present[name] = ok && strings.TrimSpace(v) != ""
	}

	t := s.Thresholds()
	return EnvReport{
		Present: present,
		Thresholds: map[string]float64{
			"btc_dominance":    t.BTCDominance.InexactFloat64(),
			"eth_btc":          t.ETHBTC.InexactFloat64(),
			"altseason_index":  t.AltseasonIndex.InexactFloat64(),
			"total2_trillions": t.Total2T.InexactFloat64(),
		},
		Model:      s.resolver.String(config.KeyOpenAIModel, config.DefaultOpenAIModel),
		Forwarding: s.resolver.Bool(config.KeyForwardVerdicts, false),
		Warnings:   s.warnings,
	}
}

// OpenAIHealth pings the reasoning backend.
func (s *Service) OpenAIHealth(ctx context.Context) ProbeResult {
	if s.llm == nil {
		return ProbeResult{Detail: "reasoning backend not configured"}
	}
	return probe(ctx, func(ctx context.Context) (string, error) {
		return "", s.llm.Ping(ctx)
	})
}

// TelegramHealth calls getMe on the bot.
func (s *Service) TelegramHealth(ctx context.Context) ProbeResult {
	if s.telegram == nil {
		return ProbeResult{Detail: alerting.ErrNotConfigured.Error()}
	}
	return probe(ctx, func(ctx context.Context) (string, error) {
		info, err := s.telegram.Ping(ctx)
		if err != nil {
			return "", err
		}
		return "@" + info.Username, nil
	})
}

func probe(ctx context.Context, fn func(context.Context) (string, error)) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	detail, err := fn(ctx)
	res := ProbeResult{OK: err == nil, Detail: detail, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}
