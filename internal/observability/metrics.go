// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "bandsentinel"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Calculation metrics
	Calculations *prometheus.CounterVec
	Exclusions   *prometheus.CounterVec
	BandHealth   *prometheus.GaugeVec
	RunDuration  prometheus.Histogram
	RunsTotal    *prometheus.CounterVec

	// Ingestion metrics
	AssetsIngested  prometheus.Counter
	IngestFailures  prometheus.Counter
	UpstreamLatency *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun    prometheus.Gauge
	LastSuccessfulIngest prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Calculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calculations_total",
			Help:      "Per-asset calculation outcomes by status",
		}, []string{"status"}),
		Exclusions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exclusions_total",
			Help:      "Assets rejected by the eligibility filter by reason",
		}, []string{"reason"}),
		BandHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "band_health_assets",
			Help:      "Number of assets per band health in the latest run",
		}, []string{"health"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Duration of calculation runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Calculation runs by result",
		}, []string{"result"}),

		AssetsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "assets_ingested_total",
			Help:      "Assets whose daily history was fetched and stored",
		}),
		IngestFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "ingest_failures_total",
			Help:      "Assets whose daily history could not be fetched or stored",
		}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of market data requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "endpoint"}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "upstream_errors_total",
			Help:      "Failed market data requests",
		}, []string{"source", "endpoint"}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last completed calculation run",
		}),
		LastSuccessfulIngest: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of the last completed price ingest",
		}),
	}
}

// RecordCalculation counts one per-asset outcome.
func (m *Metrics) RecordCalculation(status string) {
	if m == nil {
		return
	}
	m.Calculations.WithLabelValues(status).Inc()
}

// RecordExclusion counts one rejected asset.
func (m *Metrics) RecordExclusion(reason string) {
	if m == nil {
		return
	}
	m.Exclusions.WithLabelValues(reason).Inc()
}

// RecordRun records a finished run and, on success, the band health distribution.
func (m *Metrics) RecordRun(d time.Duration, err error, health map[string]int) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
	if err != nil {
		m.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("success").Inc()
	m.LastSuccessfulRun.SetToCurrentTime()
	for h, n := range health {
		m.BandHealth.WithLabelValues(h).Set(float64(n))
	}
}

// RecordIngest counts one asset fetch outcome.
func (m *Metrics) RecordIngest(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IngestFailures.Inc()
		return
	}
	m.AssetsIngested.Inc()
}

// RecordIngestDone marks a completed ingest pass.
func (m *Metrics) RecordIngestDone() {
	if m == nil {
		return
	}
	m.LastSuccessfulIngest.SetToCurrentTime()
}

// RecordUpstream records latency and failure of one upstream request.
func (m *Metrics) RecordUpstream(source, endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(source, endpoint).Observe(d.Seconds())
	if err != nil {
		m.UpstreamErrors.WithLabelValues(source, endpoint).Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
