package collector

import (
	"context"

	"BandSentinel/internal/model"
)

// PriceSource defines the interface for fetching market data.
type PriceSource interface {
	// Markets returns up to limit assets ranked by market cap, stablecoin flag set.
	Markets(ctx context.Context, limit int) ([]model.Asset, error)

	// DailyPrices returns roughly days of daily closes for a provider coin id.
	DailyPrices(ctx context.Context, coinID string, days int) ([]model.DailyPricePoint, error)

	Name() string
}
