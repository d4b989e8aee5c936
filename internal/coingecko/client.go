// Package coingecko is a minimal client for the CoinGecko v3 REST API
// covering the two Bitcoin endpoints the ingester needs.
//
// Each call makes a single attempt. Retrying is left to the caller's
// schedule: the poller simply tries again on its next tick.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btcpulse/internal/model"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTimeout = 10 * time.Second

	// MaxHistoryDays is the longest market_chart range the free tier serves.
	MaxHistoryDays = 90
)

// Config configures the client.
type Config struct {
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.coingecko.com/api/v3"`
	APIKey       string        `env:"API_KEY"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coingecko %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to CoinGecko.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time

	// OnRequest, if set, observes every request's endpoint, latency and error.
	OnRequest func(endpoint string, d time.Duration, err error)
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		now:     time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.httpClient = &http.Client{Timeout: timeout}
	return c
}

// Quote is the current market snapshot.
type Quote struct {
	Tick           model.Tick `json:"tick"`
	Change24hPct   float64    `json:"change_24h_pct"`
	LastUpdatedUTC time.Time  `json:"last_updated"`
}

type coinResponse struct {
	MarketData struct {
		CurrentPrice             map[string]json.Number `json:"current_price"`
		TotalVolume              map[string]json.Number `json:"total_volume"`
		MarketCap                map[string]json.Number `json:"market_cap"`
		PriceChangePercentage24h json.Number            `json:"price_change_percentage_24h"`
	} `json:"market_data"`
	LastUpdated time.Time `json:"last_updated"`
}

// Current fetches the current USD price, 24h volume and market cap.
// The tick is stamped with the local receive time in UTC, to the millisecond.
func (c *Client) Current(ctx context.Context) (Quote, error) {
	params := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"market_data":    {"true"},
		"community_data": {"false"},
		"developer_data": {"false"},
	}
	var resp coinResponse
	if err := c.get(ctx, "/coins/bitcoin", params, &resp); err != nil {
		return Quote{}, err
	}

	md := resp.MarketData
	price, err := usd(md.CurrentPrice, "current_price")
	if err != nil {
		return Quote{}, err
	}
	volume, err := usd(md.TotalVolume, "total_volume")
	if err != nil {
		return Quote{}, err
	}
	mcap, err := usd(md.MarketCap, "market_cap")
	if err != nil {
		mcap = decimal.Zero
	}
	change, _ := md.PriceChangePercentage24h.Float64()

	return Quote{
		Tick: model.Tick{
			TS:        c.now().UTC().Truncate(time.Millisecond),
			Price:     price,
			Volume:    volume,
			MarketCap: mcap,
		},
		Change24hPct:   change,
		LastUpdatedUTC: resp.LastUpdated.UTC(),
	}, nil
}

type marketChartResponse struct {
	Prices       [][2]json.Number `json:"prices"`
	TotalVolumes [][2]json.Number `json:"total_volumes"`
	MarketCaps   [][2]json.Number `json:"market_caps"`
}

// History fetches days of price history (capped at MaxHistoryDays) as ticks
// ordered by timestamp. Volumes and market caps are matched by position;
// missing entries are zero.
func (c *Client) History(ctx context.Context, days int) ([]model.Tick, error) {
	if days < 1 {
		return nil, fmt.Errorf("coingecko: history days %d, must be >= 1", days)
	}
	days = min(days, MaxHistoryDays)

	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}
	var resp marketChartResponse
	if err := c.get(ctx, "/coins/bitcoin/market_chart", params, &resp); err != nil {
		return nil, err
	}

	ticks := make([]model.Tick, 0, len(resp.Prices))
	for i, p := range resp.Prices {
		ms, err := p[0].Int64()
		if err != nil {
			f, ferr := p[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("coingecko: prices[%d] timestamp %q: %w", i, p[0], err)
			}
			ms = int64(f)
		}
		price, err := decimal.NewFromString(p[1].String())
		if err != nil {
			return nil, fmt.Errorf("coingecko: prices[%d] price %q: %w", i, p[1], err)
		}
		t := model.Tick{
			TS:        time.UnixMilli(ms).UTC(),
			Price:     price,
			Volume:    pairValue(resp.TotalVolumes, i),
			MarketCap: pairValue(resp.MarketCaps, i),
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func pairValue(pairs [][2]json.Number, i int) decimal.Decimal {
	if i >= len(pairs) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(pairs[i][1].String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func usd(m map[string]json.Number, field string) (decimal.Decimal, error) {
	n, ok := m["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko: market_data.%s.usd missing", field)
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: market_data.%s.usd %q: %w", field, n, err)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (err error) {
	start := time.Now()
	if c.OnRequest != nil {
		defer func() { c.OnRequest(endpoint, time.Since(start), err) }()
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "btcpulse")
	if c.apiKey != "" {
		req.Header.Set("x-cg-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coingecko %s: decode: %w", endpoint, err)
	}
	return nil
}
