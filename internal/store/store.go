package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BandSentinel/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Store persists the asset registry, daily prices and calculation outputs.
// Implementations are safe for concurrent use.
type Store interface {
	// UpsertAssets inserts or replaces registry rows keyed by asset ID.
	UpsertAssets(ctx context.Context, assets []model.Asset) error

	// ListAssets returns every registry row ordered by rank (unknown ranks last), then ID.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// ListActiveAssets is ListAssets restricted to active assets.
	ListActiveAssets(ctx context.Context) ([]model.Asset, error)

	// UpsertDailyPrices writes points for an asset. A point for an existing date supersedes it.
	UpsertDailyPrices(ctx context.Context, assetID string, points []model.DailyPricePoint) error

	// DailyPrices returns an asset's points dated on or before through, ordered by date ASC.
	DailyPrices(ctx context.Context, assetID string, through time.Time) ([]model.DailyPricePoint, error)

	// UpsertResult writes one result keyed by (asset, calculation date).
	UpsertResult(ctx context.Context, r *model.BMSBResult) error

	// Result returns the result for an asset and day. Returns ErrNotFound if absent.
	Result(ctx context.Context, assetID string, date time.Time) (*model.BMSBResult, error)

	// LatestResults returns all results for a day ordered by asset ID.
	LatestResults(ctx context.Context, date time.Time) ([]*model.BMSBResult, error)

	// RecordStatus writes one status keyed by (asset, calculation date).
	RecordStatus(ctx context.Context, s *model.CalculationStatus) error

	// Statuses returns all statuses for a day ordered by asset ID.
	Statuses(ctx context.Context, date time.Time) ([]*model.CalculationStatus, error)

	// ReplaceExclusions replaces the rejected set recorded for a day.
	ReplaceExclusions(ctx context.Context, date time.Time, excl []model.Exclusion) error

	// Exclusions returns the rejected set recorded for a day ordered by asset ID.
	Exclusions(ctx context.Context, date time.Time) ([]model.Exclusion, error)

	// PruneResults deletes results and statuses dated before the given day.
	PruneResults(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

const dateLayout = "2006-01-02"

func validateResult(r *model.BMSBResult) error {
	if r == nil || r.AssetID == "" || r.CalculationDate.IsZero() {
		return ErrInvalidInput
	}
	return nil
}

func validateStatus(s *model.CalculationStatus) error {
	if s == nil || s.AssetID == "" || s.CalculationDate.IsZero() || s.Status == "" {
		return ErrInvalidInput
	}
	return nil
}

func validateAssets(assets []model.Asset) error {
	for _, a := range assets {
		if a.ID == "" || a.Symbol == "" {
			return ErrInvalidInput
		}
	}
	return nil
}

// rankLess orders assets by rank with unknown ranks last, then by ID.
func rankLess(a, b model.Asset) bool {
	ra, rb := a.Rank, b.Rank
	if ra <= 0 {
		ra = int(^uint(0) >> 1)
	}
	if rb <= 0 {
		rb = int(^uint(0) >> 1)
	}
	if ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

// Open returns the Store for driver: "memory", "sqlite" (dsn is a file path) or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
