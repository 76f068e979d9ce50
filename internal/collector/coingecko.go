package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"BandSentinel/internal/model"
	"BandSentinel/internal/observability"
)

const (
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	marketsPageSize  = 250
)

// CoinGeckoConfig configures the CoinGecko public API client.
type CoinGeckoConfig struct {
	BaseURL    string
	APIKey     string // optional demo key
	ProxyURL   string
	VsCurrency string
	Timeout    time.Duration
}

// CoinGeckoSource implements PriceSource using the CoinGecko REST API.
type CoinGeckoSource struct {
	client     *resty.Client
	vsCurrency string
	metrics    *observability.Metrics
}

// NewCoinGeckoSource creates a CoinGecko client with optional proxy support.
func NewCoinGeckoSource(cfg CoinGeckoConfig, metrics *observability.Metrics) *CoinGeckoSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = coinGeckoBaseURL
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-cg-demo-api-key", cfg.APIKey)
	}
	if cfg.ProxyURL != "" {
		if _, err := url.Parse(cfg.ProxyURL); err == nil {
			client.SetProxy(cfg.ProxyURL)
		}
	}
	client.SetRetryCount(2)
	client.SetRetryWaitTime(2 * time.Second)
	client.SetRetryMaxWaitTime(20 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &CoinGeckoSource{client: client, vsCurrency: cfg.VsCurrency, metrics: metrics}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

// cgMarket is one row of /coins/markets.
type cgMarket struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

// cgMarketChart is the response of /coins/{id}/market_chart.
type cgMarketChart struct {
	Prices [][2]float64 `json:"prices"`
}

func (s *CoinGeckoSource) get(ctx context.Context, endpoint, path string, params map[string]string, out any) error {
	start := time.Now()
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("coingecko: status %d, body: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	s.metrics.RecordUpstream(s.Name(), endpoint, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", endpoint, err)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("coingecko %s decode: %w", endpoint, err)
	}
	return nil
}

func (s *CoinGeckoSource) markets(ctx context.Context, limit int, category string) ([]cgMarket, error) {
	var all []cgMarket
	for page := 1; len(all) < limit; page++ {
		perPage := min(marketsPageSize, limit-len(all))
		params := map[string]string{
			"vs_currency": s.vsCurrency,
			"order":       "market_cap_desc",
			"per_page":    strconv.Itoa(perPage),
			"page":        strconv.Itoa(page),
		}
		endpoint := "markets"
		if category != "" {
			params["category"] = category
			endpoint = "markets_" + category
		}

		var rows []cgMarket
		if err := s.get(ctx, endpoint, "/coins/markets", params, &rows); err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < perPage {
			break
		}
	}
	return all, nil
}

func (s *CoinGeckoSource) Markets(ctx context.Context, limit int) ([]model.Asset, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.markets(ctx, limit, "")
	if err != nil {
		return nil, err
	}
	stable, err := s.markets(ctx, limit, "stablecoins")
	if err != nil {
		return nil, err
	}
	stableIDs := make(map[string]bool, len(stable))
	for _, r := range stable {
		stableIDs[r.ID] = true
	}

	assets := make([]model.Asset, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" || r.Symbol == "" {
			continue
		}
		rank := 0
		if r.MarketCapRank != nil {
			rank = *r.MarketCapRank
		}
		assets = append(assets, model.Asset{
			ID: r.ID,
			AssetMeta: model.AssetMeta{
				Symbol:       strings.ToUpper(r.Symbol),
				Name:         r.Name,
				IsStablecoin: stableIDs[r.ID],
				Rank:         rank,
			},
			Active: true,
		})
	}
	return assets, nil
}

func (s *CoinGeckoSource) DailyPrices(ctx context.Context, coinID string, days int) ([]model.DailyPricePoint, error) {
	var chart cgMarketChart
	err := s.get(ctx, "market_chart", "/coins/"+url.PathEscape(coinID)+"/market_chart", map[string]string{
		"vs_currency": s.vsCurrency,
		"days":        strconv.Itoa(days),
		"interval":    "daily",
	}, &chart)
	if err != nil {
		return nil, err
	}

	points := make([]model.DailyPricePoint, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		points = append(points, model.DailyPricePoint{
			Date:  time.UnixMilli(int64(p[0])).UTC(),
			Close: p[1],
		})
	}
	return points, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
