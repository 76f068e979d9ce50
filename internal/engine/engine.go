// Package engine runs one calculation pass over the asset registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"BandSentinel/internal/calculator"
	"BandSentinel/internal/eligibility"
	"BandSentinel/internal/model"
	"BandSentinel/internal/observability"
	"BandSentinel/internal/store"
)

// Options tunes an Engine.
type Options struct {
	Workers int
	Metrics *observability.Metrics
}

// Engine computes and persists band results for every active asset.
type Engine struct {
	store   store.Store
	filter  *eligibility.Filter
	metrics *observability.Metrics
	workers int
	now     func() time.Time
}

// New creates a new Engine.
func New(st store.Store, filter *eligibility.Filter, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		store:   st,
		filter:  filter,
		metrics: opts.Metrics,
		workers: opts.Workers,
		now:     time.Now,
	}
}

// Eligibility evaluates the filter over the active universe.
func (e *Engine) Eligibility(ctx context.Context) ([]model.Asset, []eligibility.Rejected, error) {
	assets, err := e.store.ListActiveAssets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active assets: %w", err)
	}
	included, rejected := e.filter.Apply(assets)
	return included, rejected, nil
}

// Run performs one calculation pass for date. Per-asset failures become statuses;
// only registry errors and cancellation fail the run.
func (e *Engine) Run(ctx context.Context, date time.Time) (report *model.RunReport, err error) {
	report = &model.RunReport{
		RunID:           uuid.NewString(),
		CalculationDate: model.UTCDay(date),
		StartedAt:       e.now().UTC(),
	}
	logger := log.WithFields(log.Fields{
		"run_id": report.RunID,
		"date":   report.CalculationDate.Format("2006-01-02"),
	})
	defer func() {
		report.Duration = e.now().Sub(report.StartedAt)
		e.metrics.RecordRun(report.Duration, err, map[string]int{
			string(model.Healthy): report.Healthy,
			string(model.Weak):    report.Weak,
		})
	}()

	assets, err := e.store.ListActiveAssets(ctx)
	if err != nil {
		return report, fmt.Errorf("list active assets: %w", err)
	}
	logger.WithField("assets", len(assets)).Info("calculation run started")

	if err := e.recordExclusions(ctx, logger, report, assets); err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, a := range assets {
		if gctx.Err() != nil {
			break
		}
		a := a
		g.Go(func() error {
			st, res := e.calculate(gctx, logger, a, report.CalculationDate, report.RunID)
			mu.Lock()
			tally(report, st, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted: %w", err)
	}

	logger.WithFields(log.Fields{
		"computed":     report.Computed,
		"insufficient": report.Insufficient,
		"invalid":      report.Invalid,
		"failed":       report.Failed,
		"excluded":     report.Excluded,
		"review":       report.Review,
		"healthy":      report.Healthy,
		"weak":         report.Weak,
	}).Info("calculation run finished")
	return report, nil
}

func (e *Engine) recordExclusions(ctx context.Context, logger *log.Entry, report *model.RunReport, assets []model.Asset) error {
	_, rejected := e.filter.Apply(assets)

	rows := make([]model.Exclusion, 0, len(rejected))
	for _, r := range rejected {
		if r.Err != nil {
			logger.WithError(r.Err).WithField("symbol", r.Asset.Symbol).Warn("eligibility needs manual review")
			report.Review++
		} else {
			report.Excluded++
		}
		e.metrics.RecordExclusion(r.Reason)
		rows = append(rows, model.Exclusion{
			AssetID: r.Asset.ID,
			Symbol:  r.Asset.Symbol,
			Reason:  r.Reason,
			Date:    report.CalculationDate,
		})
	}
	if err := e.store.ReplaceExclusions(ctx, report.CalculationDate, rows); err != nil {
		return fmt.Errorf("record exclusions: %w", err)
	}
	return nil
}

func (e *Engine) calculate(ctx context.Context, logger *log.Entry, a model.Asset, day time.Time, runID string) (model.StatusKind, *model.BMSBResult) {
	status := &model.CalculationStatus{
		AssetID:         a.ID,
		CalculationDate: day,
		RunID:           runID,
	}

	res, err := e.compute(ctx, a, day)
	status.Status = statusOf(err)
	if err != nil {
		status.Detail = err.Error()
		entry := logger.WithError(err).WithField("asset", a.ID)
		if status.Status == model.StatusFailed {
			entry.Error("calculation failed")
		} else {
			entry.Debug("asset not computable")
		}
	}

	if err := e.store.RecordStatus(ctx, status); err != nil {
		logger.WithError(err).WithField("asset", a.ID).Error("record status failed")
	}
	e.metrics.RecordCalculation(string(status.Status))
	return status.Status, res
}

func (e *Engine) compute(ctx context.Context, a model.Asset, day time.Time) (*model.BMSBResult, error) {
	daily, err := e.store.DailyPrices(ctx, a.ID, day)
	if err != nil {
		return nil, fmt.Errorf("load daily prices: %w", err)
	}
	res, err := calculator.Analyze(a.ID, day, daily, a.IsStablecoin)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertResult(ctx, res); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return res, nil
}

func statusOf(err error) model.StatusKind {
	switch {
	case err == nil:
		return model.StatusOK
	case errors.Is(err, calculator.ErrInsufficientHistory):
		return model.StatusInsufficientHistory
	case errors.Is(err, calculator.ErrInvalidPriceData):
		return model.StatusInvalidPriceData
	default:
		return model.StatusFailed
	}
}

func tally(r *model.RunReport, st model.StatusKind, res *model.BMSBResult) {
	switch st {
	case model.StatusOK:
		r.Computed++
	case model.StatusInsufficientHistory:
		r.Insufficient++
	case model.StatusInvalidPriceData:
		r.Invalid++
	default:
		r.Failed++
	}
	if res == nil {
		return
	}
	switch res.BandHealth {
	case model.Healthy:
		r.Healthy++
	case model.Weak:
		r.Weak++
	}
}
