package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"signal-bridge/internal/alerting"
	"signal-bridge/internal/auth"
	"signal-bridge/internal/config"
	"signal-bridge/internal/fetcher"
	"signal-bridge/internal/httpapi"
	"signal-bridge/internal/llm"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/regime"
	"signal-bridge/internal/scheduler"
	"signal-bridge/internal/service"
	"signal-bridge/internal/verdict"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, Out: os.Stdout}
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	cfg := a.Config.Telegram
	if !cfg.Enabled() {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
}

func (a *App) newFetcher() *fetcher.Market {
	cfg := a.Config.Market
	return fetcher.NewMarket(fetcher.MarketOptions{
		CoinGeckoURL: cfg.CoinGeckoURL,
		ASIURL:       cfg.ASIURL,
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newLLM(resolver *config.Resolver) *llm.Client {
	cfg := a.Config.OpenAI
	if cfg.APIKey == "" {
		return nil
	}
	return llm.NewClient(llm.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		ModelFunc: func() string {
			return resolver.String(config.KeyOpenAIModel, cfg.Model)
		},
	}, a.Logger)
}

// newService wires the engines. Absent integrations stay nil interfaces so
// the service sees them as unconfigured. A non-nil sink replaces Telegram for
// regime notifications.
func (a *App) newService(recorder *metrics.Recorder, sink regime.Sink) *service.Service {
	resolver := a.Config.Resolver(a.Logger)
	deps := service.Dependencies{
		State:    regime.NewState(),
		Fetcher:  a.newFetcher(),
		Resolver: resolver,
		Metrics:  recorder,
		Warnings: a.Config.Warnings,
	}

	var completer verdict.Completer
	if client := a.newLLM(resolver); client != nil {
		completer = client
		deps.LLM = client
	} else {
		a.Logger.Warn().Msg("openai.api_key not configured; every alert will be ignored")
	}
	deps.Verdicts = verdict.NewEngine(completer, a.Config.OpenAI.Timeout, a.Logger)

	if notifier := a.newNotifier(); notifier != nil {
		deps.Telegram = notifier
		if sink == nil {
			sink = notifier
		}
	}
	if sink != nil {
		deps.Notifier = sink
	} else {
		a.Logger.Warn().Msg("telegram not configured; notifications disabled")
	}
	deps.Regime = regime.NewEngine(sink, a.Logger, regime.WithNotifyTimeout(a.Config.Regime.NotifyTimeout))

	return service.New(deps, a.Logger)
}

// newWatch builds the periodic regime watch, or nil when it is disabled. The
// first check runs at boot so a restart does not wait a full interval.
func (a *App) newWatch() (*scheduler.Scheduler, error) {
	interval := a.Config.Regime.WatchInterval
	if interval <= 0 {
		return nil, nil
	}
	sched, err := scheduler.New(scheduler.Options{
		Interval:       interval,
		AlignToStart:   true,
		RunImmediately: true,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Dur("interval", interval).Msg("periodic regime watch enabled")
	return sched, nil
}

// Run serves HTTP and, when configured, the periodic regime watch until a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	recorder := metrics.New()
	svc := a.newService(recorder, nil)
	resolver := a.Config.Resolver(a.Logger)

	gate := auth.NewGate(func() string {
		return resolver.String(config.KeyWebhookSecret, a.Config.Webhook.Secret)
	})
	if gate.Open() {
		a.Logger.Warn().Msg("webhook secret not configured; endpoints are open")
	}

	handler := httpapi.NewHandler(svc, gate, a.Logger)
	server := httpapi.NewServer(handler, recorder, a.Logger,
		httpapi.WithAddr(a.Config.HTTP.Addr),
		httpapi.WithTimeouts(a.Config.HTTP.ReadTimeout, a.Config.HTTP.WriteTimeout, a.Config.HTTP.ShutdownTimeout),
	)

	sched, err := a.newWatch()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(ctx)
	})
	if sched != nil {
		group.Go(func() error {
			err := sched.Run(ctx, svc.Tick)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	a.Logger.Info().Str("addr", a.Config.HTTP.Addr).Msg("starting signal bridge")
	if err := group.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("signal bridge terminated with error")
		return err
	}

	a.Logger.Info().Msg("signal bridge stopped")
	return nil
}
