package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"signal-bridge/internal/regime"
)

const (
	sourceGlobal = "coingecko_global"
	sourcePrice  = "coingecko_price"
	sourceASI    = "altseason_index"

	globalPath = "/global"
	pricePath  = "/simple/price?ids=ethereum&vs_currencies=btc"

	maxBodyBytes = 4 << 20
)

var (
	hundred  = decimal.NewFromInt(100)
	trillion = decimal.NewFromInt(1_000_000_000_000)

	asiPattern = regexp.MustCompile(`Altcoin Season Index[^0-9]*([0-9]{2,3})`)
)

// MarketOptions parameterise the market-data fetcher.
type MarketOptions struct {
	CoinGeckoURL string
	ASIURL       string
	Timeout      time.Duration
	UserAgent    string
}

// Market fetches dominance, TOTAL2 and ETH/BTC from CoinGecko and scrapes the
// altseason index page.
type Market struct {
	opts      MarketOptions
	logger    zerolog.Logger
	client    *http.Client
	coingecko string
	breakers  map[string]*breaker
	now       func() time.Time
}

// NewMarket constructs a market fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.CoinGeckoURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if strings.TrimSpace(opts.ASIURL) == "" {
		opts.ASIURL = "https://www.blockchaincenter.net/altcoin-season-index/"
	}

	return &Market{
		opts:      opts,
		logger:    logger.With().Str("component", "market_fetcher").Logger(),
		client:    &http.Client{Timeout: timeout},
		coingecko: baseURL,
		breakers: map[string]*breaker{
			sourceGlobal: newBreaker(sourceGlobal),
			sourcePrice:  newBreaker(sourcePrice),
			sourceASI:    newBreaker(sourceASI),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FetchReading queries every source concurrently and assembles whatever came
// back.
func (m *Market) FetchReading(ctx context.Context) (regime.Reading, error) {
	reading := regime.Reading{AsOf: m.now()}

	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)
	record := func(source string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
		mu.Unlock()
	}

	group.Go(func() error {
		dominance, total2, err := m.fetchGlobal(ctx)
		record(sourceGlobal, err)
		if err == nil {
			reading.BTCDominance = decimal.NewNullDecimal(dominance)
			reading.Total2T = decimal.NewNullDecimal(total2)
		}
		return nil
	})
	group.Go(func() error {
		ethBTC, err := m.fetchETHBTC(ctx)
		record(sourcePrice, err)
		if err == nil {
			reading.ETHBTC = decimal.NewNullDecimal(ethBTC)
		}
		return nil
	})
	group.Go(func() error {
		asi, err := m.fetchASI(ctx)
		record(sourceASI, err)
		if err == nil {
			reading.AltseasonIndex = decimal.NewNullDecimal(asi)
		}
		return nil
	})
	_ = group.Wait()

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn().Err(err).Int("present", reading.Present()).Msg("market reading incomplete")
	} else {
		m.logger.Debug().Int("present", reading.Present()).Msg("market reading fetched")
	}
	return reading, err
}

func (m *Market) fetchGlobal(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var dominance, total2 decimal.Decimal
	err := m.breakers[sourceGlobal].run(func() error {
		payload, err := m.get(ctx, m.coingecko+globalPath, "application/json")
		if err != nil {
			return err
		}
		mcap, ok := decimalFrom(gjson.GetBytes(payload, "data.total_market_cap.usd"))
		if !ok || !mcap.IsPositive() {
			return errors.New("total market cap missing from response")
		}
		dom, ok := decimalFrom(gjson.GetBytes(payload, "data.market_cap_percentage.btc"))
		if !ok || !dom.IsPositive() || dom.GreaterThan(hundred) {
			return errors.New("btc dominance missing from response")
		}
		dominance = dom
		total2 = mcap.Mul(decimal.NewFromInt(1).Sub(dom.Div(hundred))).Div(trillion)
		return nil
	})
	return dominance, total2, err
}

func (m *Market) fetchETHBTC(ctx context.Context) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := m.breakers[sourcePrice].run(func() error {
		payload, err := m.get(ctx, m.coingecko+pricePath, "application/json")
		if err != nil {
			return err
		}
		v, ok := decimalFrom(gjson.GetBytes(payload, "ethereum.btc"))
		if !ok || !v.IsPositive() {
			return errors.New("eth/btc price missing from response")
		}
		value = v
		return nil
	})
	return value, err
}

func (m *Market) fetchASI(ctx context.Context) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := m.breakers[sourceASI].run(func() error {
		payload, err := m.get(ctx, m.opts.ASIURL, "text/html")
		if err != nil {
			return err
		}
		v, err := parseASI(payload)
		if err != nil {
			return err
		}
		value = decimal.NewFromInt(int64(v))
		return nil
	})
	return value, err
}

// parseASI extracts the index from the page's visible text.
func parseASI(page []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return 0, fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")

	match := asiPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, errors.New("index not found on page")
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse index: %w", err)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("index %d out of range", v)
	}
	return v, nil
}

func (m *Market) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "signal-bridge/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

func decimalFrom(res gjson.Result) (decimal.Decimal, bool) {
	if res.Type != gjson.Number {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(res.Raw)
	if err != nil {
		return decimal.NewFromFloat(res.Float()), true
	}
	return d, true
}

func parseHTTPError(status int, payload []byte) error {
	if gjson.ValidBytes(payload) {
		for _, path := range []string{"error", "status.error_message", "message"} {
			if msg := gjson.GetBytes(payload, path); msg.Type == gjson.String && msg.String() != "" {
				return fmt.Errorf("http %d: %s", status, msg.String())
			}
		}
	}
	return fmt.Errorf("http %d", status)
}

var _ ReadingFetcher = (*Market)(nil)
