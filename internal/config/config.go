package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"signal-bridge/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Market   MarketConfig   `mapstructure:"market"`
	Regime   RegimeConfig   `mapstructure:"regime"`

	// Warnings lists options that failed to parse and fell back to defaults.
	Warnings []string `mapstructure:"-"`

	source *viper.Viper
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig controls the inbound listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebhookConfig covers the inbound alert surface.
type WebhookConfig struct {
	Secret          string `mapstructure:"secret"`
	ForwardVerdicts bool   `mapstructure:"forward_verdicts"`
}

// OpenAIConfig describes the reasoning backend.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelegramConfig describes the notification sink.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MarketConfig covers the public market-data sources.
type MarketConfig struct {
	CoinGeckoURL string        `mapstructure:"coingecko_url"`
	ASIURL       string        `mapstructure:"asi_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// RegimeConfig holds the altseason thresholds as loaded at start. Request
// paths read them through Resolver instead.
type RegimeConfig struct {
	BTCDominanceThr float64       `mapstructure:"btc_dom_thr"`
	ETHBTCThr       float64       `mapstructure:"eth_btc_thr"`
	ASIThr          float64       `mapstructure:"asi_thr"`
	Total2ThrT      float64       `mapstructure:"total2_thr_t"`
	WatchInterval   time.Duration `mapstructure:"watch_interval"`
	NotifyTimeout   time.Duration `mapstructure:"notify_timeout"`
}

// Option keys shared by Load and Resolver.
const (
	KeyWebhookSecret   = "webhook.secret"
	KeyForwardVerdicts = "webhook.forward_verdicts"
	KeyOpenAIModel     = "openai.model"
	KeyBTCDominanceThr = "regime.btc_dom_thr"
	KeyETHBTCThr       = "regime.eth_btc_thr"
	KeyASIThr          = "regime.asi_thr"
	KeyTotal2ThrT      = "regime.total2_thr_t"
)

// Baseline thresholds.
const (
	DefaultBTCDominanceThr = 55.0
	DefaultETHBTCThr       = 0.045
	DefaultASIThr          = 75.0
	DefaultTotal2ThrT      = 1.78
	DefaultOpenAIModel     = "gpt-4o-mini"
)

type option struct {
	key string
	env string
	def any
}

var options = []option{
	{"app.name", "", "signal-bridge"},
	{"app.environment", "APP_ENV", "development"},

	{"logging.level", "LOG_LEVEL", "info"},
	{"logging.format", "LOG_FORMAT", "json"},
	{"logging.service", "", "signal-bridge"},

	{"http.addr", "HTTP_ADDR", ":8000"},
	{"http.read_timeout", "", 10 * time.Second},
	{"http.write_timeout", "", 30 * time.Second},
	{"http.shutdown_timeout", "", 10 * time.Second},

	{KeyWebhookSecret, "WEBHOOK_SECRET", ""},
	{KeyForwardVerdicts, "FORWARD_VERDICTS", false},

	{"openai.api_key", "OPENAI_API_KEY", ""},
	{KeyOpenAIModel, "OPENAI_MODEL", DefaultOpenAIModel},
	{"openai.base_url", "OPENAI_BASE_URL", "https://api.openai.com/v1"},
	{"openai.timeout", "OPENAI_TIMEOUT", 8 * time.Second},

	{"telegram.bot_token", "TELEGRAM_TOKEN", ""},
	{"telegram.chat_id", "TELEGRAM_CHAT", ""},
	{"telegram.api_base", "TELEGRAM_API_BASE", "https://api.telegram.org"},
	{"telegram.timeout", "", 10 * time.Second},

	{"market.coingecko_url", "COINGECKO_URL", "https://api.coingecko.com/api/v3"},
	{"market.asi_url", "ASI_URL", "https://www.blockchaincenter.net/altcoin-season-index/"},
	{"market.timeout", "", 15 * time.Second},
	{"market.user_agent", "", "signal-bridge/1.0"},

	{KeyBTCDominanceThr, "ALT_BTC_DOM_THR", DefaultBTCDominanceThr},
	{KeyETHBTCThr, "ALT_ETH_BTC_THR", DefaultETHBTCThr},
	{KeyASIThr, "ALT_ASI_THR", DefaultASIThr},
	{KeyTotal2ThrT, "ALT_TOTAL2_THR_T", DefaultTotal2ThrT},
	{"regime.watch_interval", "ALT_WATCH_INTERVAL", time.Duration(0)},
	{"regime.notify_timeout", "", 10 * time.Second},
}

// Load builds configuration from file, environment, and defaults. Values that
// fail to parse never abort loading; they fall back to their default and are
// reported in Config.Warnings.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	settings := v.AllSettings()
	warnings := sanitize(v, settings)

	var cfg Config
	decoder, err := mapstructure.NewDecoder(decoderConfig(&cfg))
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Warnings = warnings
	cfg.source = v

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) error {
	for _, opt := range options {
		v.SetDefault(opt.key, opt.def)
		if opt.env == "" {
			continue
		}
		if err := v.BindEnv(opt.key, opt.env); err != nil {
			return fmt.Errorf("bind env %s: %w", opt.env, err)
		}
	}
	return nil
}

// sanitize rewrites typed values in the settings tree to their parsed form,
// replacing unparsable ones with defaults so decoding cannot fail on typos.
func sanitize(v *viper.Viper, settings map[string]any) []string {
	var warnings []string
	for _, opt := range options {
		raw := v.Get(opt.key)
		if raw == nil {
			continue
		}
		value, err := coerce(raw, opt.def)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v; using default %v", opt.key, err, opt.def))
			value = opt.def
		}
		setPath(settings, opt.key, value)
	}
	return warnings
}

// coerce converts raw into the type of def.
func coerce(raw, def any) (any, error) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	switch def.(type) {
	case float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite value %v", f)
		}
		return f, nil
	case time.Duration:
		return cast.ToDurationE(raw)
	case bool:
		return cast.ToBoolE(raw)
	case int:
		return cast.ToIntE(raw)
	default:
		return cast.ToStringE(raw)
	}
}

func setPath(settings map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	node := settings
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

func decoderConfig(out *Config) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
}

// Validate performs basic sanity checks on the configuration values. Only an
// unusable listener is fatal; everything else degrades with a warning.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.Regime.WatchInterval < 0 {
		c.Warnings = append(c.Warnings, "regime.watch_interval is negative; periodic watch disabled")
		c.Regime.WatchInterval = 0
	}
	if c.OpenAI.Timeout <= 0 {
		c.Warnings = append(c.Warnings, "openai.timeout must be positive; using 8s")
		c.OpenAI.Timeout = 8 * time.Second
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		c.Warnings = append(c.Warnings, "telegram.chat_id missing; notifications disabled")
	}
	return nil
}

// Source exposes the underlying viper instance for request-time resolution.
func (c *Config) Source() *viper.Viper {
	if c.source == nil {
		c.source = viper.New()
	}
	return c.source
}
