package collector

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"BandSentinel/internal/cache"
	"BandSentinel/internal/calculator"
	"BandSentinel/internal/model"
	"BandSentinel/internal/observability"
	"BandSentinel/internal/store"
)

// Options tunes a Collector. Zero values fall back to defaults.
type Options struct {
	UniverseSize int
	HistoryDays  int
	CacheTTL     time.Duration
	Limiter      *rate.Limiter
	Cache        cache.Cache
	Metrics      *observability.Metrics
}

// Collector keeps the asset registry and daily price history in sync with a PriceSource.
type Collector struct {
	source  PriceSource
	store   store.Store
	cache   cache.Cache
	limiter *rate.Limiter
	metrics *observability.Metrics

	universeSize int
	historyDays  int
	cacheTTL     time.Duration
}

// IngestReport summarizes one IngestPrices pass.
type IngestReport struct {
	Assets int
	Points int
	Failed []string
}

// New creates a new Collector.
func New(source PriceSource, st store.Store, opts Options) *Collector {
	if opts.UniverseSize <= 0 {
		opts.UniverseSize = 200
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 365
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	return &Collector{
		source:       source,
		store:        st,
		cache:        opts.Cache,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
		universeSize: opts.UniverseSize,
		historyDays:  opts.HistoryDays,
		cacheTTL:     opts.CacheTTL,
	}
}

// NewLimiter returns a limiter allowing requestsPerMinute upstream calls, bursting one.
// A non-positive rate disables limiting.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// SyncAssets refreshes the registry with the current top-N universe. Assets that
// dropped out of it are kept but marked inactive. Returns the active count.
func (c *Collector) SyncAssets(ctx context.Context) (int, error) {
	key := fmt.Sprintf("%s:markets:%d", c.source.Name(), c.universeSize)

	var markets []model.Asset
	hit, err := c.cache.Get(ctx, key, &markets)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	if !hit {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		markets, err = c.source.Markets(ctx, c.universeSize)
		if err != nil {
			return 0, fmt.Errorf("fetch markets: %w", err)
		}
		if err := c.cache.Set(ctx, key, markets, c.cacheTTL); err != nil {
			log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}
	if len(markets) == 0 {
		return 0, fmt.Errorf("fetch markets: empty universe from %s", c.source.Name())
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(markets))
	rows := make([]model.Asset, 0, len(markets))
	for _, a := range markets {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		a.Active = true
		a.UpdatedAt = now
		rows = append(rows, a)
	}

	existing, err := c.store.ListAssets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list assets: %w", err)
	}
	dropped := 0
	for _, a := range existing {
		if seen[a.ID] || !a.Active {
			continue
		}
		a.Active = false
		a.UpdatedAt = now
		rows = append(rows, a)
		dropped++
	}

	if err := c.store.UpsertAssets(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert assets: %w", err)
	}

	log.WithFields(log.Fields{
		"source":   c.source.Name(),
		"active":   len(seen),
		"inactive": dropped,
	}).Info("asset registry synced")
	return len(seen), nil
}

// IngestPrices fetches and stores daily history for every active asset.
// Per-asset failures are logged and reported, never fatal to the batch.
func (c *Collector) IngestPrices(ctx context.Context) (*IngestReport, error) {
	assets, err := c.store.ListActiveAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active assets: %w", err)
	}

	report := &IngestReport{}
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := c.ingestOne(ctx, a.ID)
		c.metrics.RecordIngest(err)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.WithError(err).WithField("asset", a.ID).Warn("price ingest failed")
			report.Failed = append(report.Failed, a.ID)
			continue
		}
		report.Assets++
		report.Points += n
	}
	c.metrics.RecordIngestDone()

	log.WithFields(log.Fields{
		"assets": report.Assets,
		"points": report.Points,
		"failed": len(report.Failed),
	}).Info("price ingest finished")
	return report, nil
}

func (c *Collector) ingestOne(ctx context.Context, assetID string) (int, error) {
	key := fmt.Sprintf("%s:daily:%s:%d", c.source.Name(), assetID, c.historyDays)

	var points []model.DailyPricePoint
	hit, err := c.cache.Get(ctx, key, &points)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	if !hit {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		points, err = c.source.DailyPrices(ctx, assetID, c.historyDays)
		if err != nil {
			return 0, err
		}
		if err := c.cache.Set(ctx, key, points, c.cacheTTL); err != nil {
			log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}

	points = calculator.NormalizeDaily(points)
	if err := c.store.UpsertDailyPrices(ctx, assetID, points); err != nil {
		return 0, fmt.Errorf("store prices: %w", err)
	}
	return len(points), nil
}
