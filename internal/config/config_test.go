package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAI.Model)
	assert.Equal(t, 8*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, DefaultBTCDominanceThr, cfg.Regime.BTCDominanceThr)
	assert.Equal(t, DefaultETHBTCThr, cfg.Regime.ETHBTCThr)
	assert.Equal(t, DefaultASIThr, cfg.Regime.ASIThr)
	assert.Equal(t, DefaultTotal2ThrT, cfg.Regime.Total2ThrT)
	assert.Zero(t, cfg.Regime.WatchInterval)
	assert.False(t, cfg.Telegram.Enabled())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "right")
	t.Setenv("ALT_BTC_DOM_THR", "52.5")
	t.Setenv("ALT_WATCH_INTERVAL", "15m")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT", "42")
	t.Setenv("FORWARD_VERDICTS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "right", cfg.Webhook.Secret)
	assert.True(t, cfg.Webhook.ForwardVerdicts)
	assert.Equal(t, 52.5, cfg.Regime.BTCDominanceThr)
	assert.Equal(t, 15*time.Minute, cfg.Regime.WatchInterval)
	assert.True(t, cfg.Telegram.Enabled())
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("ALT_ETH_BTC_THR", "not-a-number")
	t.Setenv("OPENAI_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultETHBTCThr, cfg.Regime.ETHBTCThr)
	assert.Equal(t, 8*time.Second, cfg.OpenAI.Timeout)
	assert.Len(t, cfg.Warnings, 2)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := "http:\n  addr: \":9090\"\nregime:\n  asi_thr: 60\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 60.0, cfg.Regime.ASIThr)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestResolverRereadsEnvironment(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	r := cfg.Resolver(zerolog.Nop())

	assert.Equal(t, DefaultASIThr, r.Float(KeyASIThr, DefaultASIThr))

	t.Setenv("ALT_ASI_THR", "81")
	assert.Equal(t, 81.0, r.Float(KeyASIThr, DefaultASIThr))

	t.Setenv("ALT_ASI_THR", "eighty")
	assert.Equal(t, DefaultASIThr, r.Float(KeyASIThr, DefaultASIThr))
}

func TestResolverTypedDefaults(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	assert.Equal(t, 1.5, r.Float("missing.float", 1.5))
	assert.Equal(t, "fallback", r.String("missing.string", "fallback"))
	assert.True(t, r.Bool("missing.bool", true))
	assert.Equal(t, time.Minute, r.Duration("missing.duration", time.Minute))
}

func TestResolverEmptyStringUsesDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	r := cfg.Resolver(zerolog.Nop())

	t.Setenv("OPENAI_MODEL", "")
	assert.Equal(t, DefaultOpenAIModel, r.String(KeyOpenAIModel, DefaultOpenAIModel))

	t.Setenv("OPENAI_MODEL", "gpt-4.1-nano")
	assert.Equal(t, "gpt-4.1-nano", r.String(KeyOpenAIModel, DefaultOpenAIModel))
}
