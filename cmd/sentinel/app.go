package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"BandSentinel/internal/cache"
	"BandSentinel/internal/collector"
	"BandSentinel/internal/config"
	"BandSentinel/internal/eligibility"
	"BandSentinel/internal/engine"
	"BandSentinel/internal/notifier"
	"BandSentinel/internal/observability"
	"BandSentinel/internal/store"
)

// app holds the wired components for one process.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	store     store.Store
	cache     cache.Cache
	collector *collector.Collector
	engine    *engine.Engine
	notifier  notifier.Notifier
	telegram  *notifier.TelegramNotifier // nil when not configured

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)

	dsn := cfg.Database.SQLitePath
	if cfg.Database.Driver == "postgres" {
		dsn = cfg.Database.PostgresDSN
	}
	if a.store, err = store.Open(ctx, cfg.Database.Driver, dsn); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	} else {
		a.cache = cache.NewMemory()
	}

	var source collector.PriceSource
	switch cfg.DataSource.Provider {
	case "mock":
		source = &collector.MockSource{Assets: collector.DemoAssets()}
	default:
		source = collector.NewCoinGeckoSource(collector.CoinGeckoConfig{
			BaseURL:    cfg.DataSource.BaseURL,
			APIKey:     cfg.DataSource.APIKey,
			ProxyURL:   cfg.Proxy,
			VsCurrency: cfg.DataSource.VsCurrency,
			Timeout:    cfg.DataSource.Timeout,
		}, a.metrics)
	}
	log.WithField("source", source.Name()).Info("data source selected")

	a.collector = collector.New(source, a.store, collector.Options{
		UniverseSize: cfg.DataSource.UniverseSize,
		HistoryDays:  cfg.DataSource.HistoryDays,
		CacheTTL:     cfg.DataSource.CacheTTL,
		Limiter:      collector.NewLimiter(cfg.DataSource.RequestsPerMinute),
		Cache:        a.cache,
		Metrics:      a.metrics,
	})

	filter, err := newFilter(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = engine.New(a.store, filter, engine.Options{
		Workers: cfg.Engine.Workers,
		Metrics: a.metrics,
	})

	a.notifier = notifier.Noop{}
	if cfg.Telegram.BotToken != "" {
		tn, err := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("init telegram: %w", err)
		}
		a.telegram = tn
		a.notifier = tn
	} else {
		log.Warn("telegram not configured, run reports are not delivered")
	}
	return a, nil
}

func newFilter(cfg *config.Config) (*eligibility.Filter, error) {
	pairs := make([]eligibility.DualRolePair, 0, len(cfg.Eligibility.DualRolePairs))
	for _, p := range cfg.Eligibility.DualRolePairs {
		pairs = append(pairs, eligibility.DualRolePair{
			Members: [2]string{p.Members[0], p.Members[1]},
			Default: p.Default,
		})
	}
	f, err := eligibility.NewFilter(pairs...)
	if err != nil {
		return nil, fmt.Errorf("eligibility filter: %w", err)
	}
	return f, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("close resource")
		}
	}
	a.closers = nil
}
