package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BandSentinel/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	Assets []model.Asset
	Prices map[string][]model.DailyPricePoint // generated when absent
	Errs   map[string]error                   // per coin id

	mu          sync.Mutex
	marketCalls int
	priceCalls  map[string]int
}

var _ PriceSource = (*MockSource)(nil)

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Markets(_ context.Context, limit int) ([]model.Asset, error) {
	m.mu.Lock()
	m.marketCalls++
	m.mu.Unlock()

	if limit > len(m.Assets) {
		limit = len(m.Assets)
	}
	out := make([]model.Asset, limit)
	copy(out, m.Assets[:limit])
	return out, nil
}

func (m *MockSource) DailyPrices(_ context.Context, coinID string, days int) ([]model.DailyPricePoint, error) {
	m.mu.Lock()
	if m.priceCalls == nil {
		m.priceCalls = make(map[string]int)
	}
	m.priceCalls[coinID]++
	m.mu.Unlock()

	if err, ok := m.Errs[coinID]; ok {
		return nil, fmt.Errorf("mock %s: %w", coinID, err)
	}
	if pts, ok := m.Prices[coinID]; ok {
		return pts, nil
	}
	return GenerateDaily(time.Now(), days, 100), nil
}

// MarketCalls returns how many times Markets was called.
func (m *MockSource) MarketCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marketCalls
}

// PriceCalls returns how many times DailyPrices was called for coinID.
func (m *MockSource) PriceCalls(coinID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceCalls[coinID]
}

// GenerateDaily builds days consecutive daily closes ending on end's UTC day,
// rising 0.1% per day from basePrice.
func GenerateDaily(end time.Time, days int, basePrice float64) []model.DailyPricePoint {
	last := model.UTCDay(end)
	pts := make([]model.DailyPricePoint, days)
	for i := 0; i < days; i++ {
		pts[i] = model.DailyPricePoint{
			Date:  last.AddDate(0, 0, i-days+1),
			Close: basePrice * (1 + float64(i)*0.001),
		}
	}
	return pts
}

// DemoAssets is a small universe covering each eligibility outcome.
func DemoAssets() []model.Asset {
	meta := []model.AssetMeta{
		{Symbol: "BTC", Name: "Bitcoin", Rank: 1},
		{Symbol: "ETH", Name: "Ethereum", Rank: 2},
		{Symbol: "USDT", Name: "Tether", IsStablecoin: true, Rank: 3},
		{Symbol: "SOL", Name: "Solana", Rank: 5},
		{Symbol: "WBTC", Name: "Wrapped Bitcoin", Rank: 15},
		{Symbol: "STETH", Name: "Lido Staked Ether", Rank: 8},
		{Symbol: "PAXG", Name: "PAX Gold", Rank: 60},
		{Symbol: "XAUT", Name: "Tether Gold", Rank: 55},
	}
	ids := []string{"bitcoin", "ethereum", "tether", "solana", "wrapped-bitcoin", "staked-ether", "pax-gold", "tether-gold"}
	out := make([]model.Asset, len(meta))
	for i, m := range meta {
		out[i] = model.Asset{ID: ids[i], AssetMeta: m, Active: true}
	}
	return out
}
