package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/alerting"
	"signal-bridge/internal/config"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/regime"
	"signal-bridge/internal/signal"
	"signal-bridge/internal/verdict"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeFetcher struct {
	reading regime.Reading
	err     error
}

func (f *fakeFetcher) FetchReading(ctx context.Context) (regime.Reading, error) {
	return f.reading, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeNotifier) SendText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeBot struct {
	info alerting.BotInfo
	err  error
}

func (f fakeBot) Ping(ctx context.Context) (alerting.BotInfo, error) {
	return f.info, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func altseasonReading() regime.Reading {
	return regime.Reading{
		BTCDominance:   regime.Value(50),
		ETHBTC:         regime.Value(0.05),
		AltseasonIndex: regime.Value(80),
		Total2T:        regime.Value(1.9),
	}
}

func entryAlert() signal.TradeAlert {
	return signal.TradeAlert{
		Tag:       "entry",
		Symbol:    "btcusdt",
		Timeframe: "1h",
		Close:     decimal.NewFromInt(65000),
		Direction: "long",
	}
}

type harness struct {
	svc       *Service
	v         *viper.Viper
	completer *fakeCompleter
	fetcher   *fakeFetcher
	notifier  *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		v:         viper.New(),
		completer: &fakeCompleter{reply: "BUY - momentum aligned"},
		fetcher:   &fakeFetcher{reading: altseasonReading()},
		notifier:  &fakeNotifier{},
	}
	logger := zerolog.Nop()
	h.svc = New(Dependencies{
		Verdicts: verdict.NewEngine(h.completer, time.Second, logger),
		Regime:   regime.NewEngine(h.notifier, logger),
		Fetcher:  h.fetcher,
		Notifier: h.notifier,
		Resolver: config.NewResolver(h.v, logger),
		Metrics:  metrics.New(),
		Warnings: []string{"regime.asi_thr: invalid value, using default"},
	}, logger)
	return h
}

func TestHandleAlertForwardsActionableVerdict(t *testing.T) {
	h := newHarness(t)
	h.v.Set(config.KeyForwardVerdicts, true)

	alert := entryAlert()
	alert.Levels = &signal.Levels{SL: decimal.NewNullDecimal(decimal.NewFromInt(64000))}

	v, err := h.svc.HandleAlert(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, verdict.Buy, v.Action)
	assert.Equal(t, "momentum aligned", v.Rationale)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "[BUY] BTCUSDT 1h LONG")
	assert.Contains(t, sent[0], "SL: 64000")
}

func TestHandleAlertForwardingDisabledByDefault(t *testing.T) {
	h := newHarness(t)

	v, err := h.svc.HandleAlert(context.Background(), entryAlert())
	require.NoError(t, err)
	assert.Equal(t, verdict.Buy, v.Action)
	assert.Empty(t, h.notifier.sent())
}

func TestHandleAlertForwardFailureKeepsVerdict(t *testing.T) {
	h := newHarness(t)
	h.v.Set(config.KeyForwardVerdicts, "true")
	h.notifier.err = errors.New("telegram down")

	v, err := h.svc.HandleAlert(context.Background(), entryAlert())
	require.NoError(t, err)
	assert.Equal(t, verdict.Buy, v.Action)
}

func TestHandleAlertIgnoreIsNotForwarded(t *testing.T) {
	h := newHarness(t)
	h.v.Set(config.KeyForwardVerdicts, true)
	h.completer.reply = "IGNORE"

	v, err := h.svc.HandleAlert(context.Background(), entryAlert())
	require.NoError(t, err)
	assert.Equal(t, verdict.Ignore, v.Action)
	assert.Empty(t, h.notifier.sent())
}

func TestHandleAlertExitEventSkipsBackend(t *testing.T) {
	h := newHarness(t)
	h.v.Set(config.KeyForwardVerdicts, true)

	alert := entryAlert()
	alert.Tag = "TP_HIT"

	v, err := h.svc.HandleAlert(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, verdict.Ignore, v.Action)
	assert.Equal(t, "exit event", v.Rationale)
	assert.False(t, v.Fallback)
	assert.Zero(t, h.completer.calls)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "[TP HIT] BTCUSDT 1h LONG")
}

func TestHandleAlertInvalid(t *testing.T) {
	h := newHarness(t)

	alert := entryAlert()
	alert.Close = decimal.Zero

	_, err := h.svc.HandleAlert(context.Background(), alert)
	require.Error(t, err)
	assert.ErrorIs(t, err, signal.ErrInvalidAlert)

	var verr *signal.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "close", verr.Field)
	assert.Zero(t, h.completer.calls)
}

func TestHandleAlertBackendFailure(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("503")

	v, err := h.svc.HandleAlert(context.Background(), entryAlert())
	require.NoError(t, err)
	assert.Equal(t, verdict.Ignore, v.Action)
	assert.True(t, v.Fallback)
}

func TestThresholdsResolvedPerCall(t *testing.T) {
	h := newHarness(t)

	summary, err := h.svc.CheckRegime(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.IsAltseason)

	h.v.Set(config.KeyBTCDominanceThr, 45)
	summary, err = h.svc.CheckRegime(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.IsAltseason)

	h.v.Set(config.KeyBTCDominanceThr, "not-a-number")
	assert.True(t, h.svc.Thresholds().BTCDominance.Equal(decimal.NewFromInt(55)))
}

func TestCheckRegimeDoesNotNotify(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CheckRegime(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.notifier.sent())
	assert.False(t, h.svc.State().Last)
}

func TestNotifyRegimeDebounce(t *testing.T) {
	h := newHarness(t)

	first := h.svc.NotifyRegime(context.Background(), false, "")
	assert.True(t, first.Notified)

	second := h.svc.NotifyRegime(context.Background(), false, "")
	assert.False(t, second.Notified)
	assert.False(t, second.Attempted)

	forced := h.svc.NotifyRegime(context.Background(), true, "operator check")
	assert.True(t, forced.Notified)

	sent := h.notifier.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "operator check")
	assert.True(t, h.svc.State().Last)
}

func TestNotifyRegimeNoDataWithForce(t *testing.T) {
	h := newHarness(t)
	h.fetcher.reading = regime.Reading{}
	h.fetcher.err = errors.New("all sources down")

	out := h.svc.NotifyRegime(context.Background(), true, "")
	assert.False(t, out.Notified)
	assert.False(t, out.Summary.IsAltseason)
	assert.ErrorIs(t, out.Err, regime.ErrNoData)
	assert.EqualError(t, out.FetchErr, "all sources down")
	assert.Empty(t, h.notifier.sent())
}

func TestTickReportsFailures(t *testing.T) {
	h := newHarness(t)
	bucket := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.svc.Tick(context.Background(), bucket))
	require.Len(t, h.notifier.sent(), 1)
	require.NoError(t, h.svc.Tick(context.Background(), bucket))
	require.Len(t, h.notifier.sent(), 1)

	h.fetcher.reading = regime.Reading{}
	err := h.svc.Tick(context.Background(), bucket)
	require.Error(t, err)
	assert.ErrorIs(t, err, regime.ErrNoData)
}

func TestEnvSanity(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "hunter2")
	t.Setenv("OPENAI_API_KEY", "")
	h := newHarness(t)

	report := h.svc.EnvSanity()
	assert.True(t, report.Present["WEBHOOK_SECRET"])
	assert.False(t, report.Present["OPENAI_API_KEY"])
	assert.Equal(t, 55.0, report.Thresholds["btc_dominance"])
	assert.Equal(t, config.DefaultOpenAIModel, report.Model)
	assert.Len(t, report.Warnings, 1)
	assert.NotContains(t, report.Warnings[0], "hunter2")
}

func TestProbes(t *testing.T) {
	logger := zerolog.Nop()
	svc := New(Dependencies{
		LLM:      fakePinger{err: errors.New("status=401: bad key")},
		Telegram: fakeBot{info: alerting.BotInfo{ID: 1, Username: "bridge_bot"}},
	}, logger)

	llm := svc.OpenAIHealth(context.Background())
	assert.False(t, llm.OK)
	assert.Equal(t, "status=401: bad key", llm.Detail)

	tg := svc.TelegramHealth(context.Background())
	assert.True(t, tg.OK)
	assert.Equal(t, "@bridge_bot", tg.Detail)

	bare := New(Dependencies{}, logger)
	assert.False(t, bare.OpenAIHealth(context.Background()).OK)
	assert.Equal(t, alerting.ErrNotConfigured.Error(), bare.TelegramHealth(context.Background()).Detail)
}
