package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"BandSentinel/internal/collector"
	"BandSentinel/internal/engine"
	"BandSentinel/internal/model"
	"BandSentinel/internal/notifier"
	"BandSentinel/internal/store"
)

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron          *cron.Cron
	Collector     *collector.Collector
	Engine        *engine.Engine
	Store         store.Store
	Notifier      notifier.Notifier
	RetentionDays int
	Ctx           context.Context

	now        func() time.Time
	mu         sync.Mutex
	lastReport *model.RunReport
}

// NewScheduler creates a new Scheduler. Overlapping runs of the same job are skipped.
func NewScheduler(ctx context.Context, col *collector.Collector, eng *engine.Engine, st store.Store, n notifier.Notifier, retentionDays int) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		Cron:          cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		Collector:     col,
		Engine:        eng,
		Store:         st,
		Notifier:      n,
		RetentionDays: retentionDays,
		Ctx:           ctx,
		now:           time.Now,
	}
}

// RegisterAll registers the ingest, calculate and retention tasks.
func (s *Scheduler) RegisterAll(ingestCron, calculateCron, retentionCron string) error {
	if _, err := s.Cron.AddFunc(ingestCron, s.ingestTask); err != nil {
		return fmt.Errorf("register ingest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(calculateCron, s.calculateTask); err != nil {
		return fmt.Errorf("register calculate task: %w", err)
	}
	if _, err := s.Cron.AddFunc(retentionCron, s.retentionTask); err != nil {
		return fmt.Errorf("register retention task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info("scheduler stopped")
}

// RunOnce ingests and calculates immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunOnce() {
	s.ingestTask()
	s.calculateTask()
}

// LastReport returns the report of the most recent successful calculation.
func (s *Scheduler) LastReport() *model.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

func (s *Scheduler) ingestTask() {
	log.Info("running ingest task")
	if _, err := s.Collector.SyncAssets(s.Ctx); err != nil {
		log.WithError(err).Error("sync assets")
		s.trySend(fmt.Sprintf("❌ Asset sync failed: %v", err))
		return
	}
	report, err := s.Collector.IngestPrices(s.Ctx)
	if err != nil {
		log.WithError(err).Error("ingest prices")
		s.trySend(fmt.Sprintf("❌ Price ingest failed: %v", err))
		return
	}
	if len(report.Failed) > 0 {
		s.trySend(fmt.Sprintf("⚠️ Price ingest: %d assets failed (%s)",
			len(report.Failed), strings.Join(head(report.Failed, 10), ", ")))
	}
}

func (s *Scheduler) calculateTask() {
	log.Info("running calculate task")
	report, err := s.Engine.Run(s.Ctx, s.now().UTC())
	if err != nil {
		log.WithError(err).Error("calculation run")
		s.trySend(fmt.Sprintf("❌ Calculation run failed: %v", err))
		return
	}
	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()
	s.trySend(notifier.FormatRunReport(report))
}

func (s *Scheduler) retentionTask() {
	cutoff := model.UTCDay(s.now()).AddDate(0, 0, -s.RetentionDays)
	n, err := s.Store.PruneResults(s.Ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("prune results")
		return
	}
	log.WithFields(log.Fields{
		"before":  cutoff.Format("2006-01-02"),
		"deleted": n,
	}).Info("retention pruned results")
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string, args []string) string {
	switch command {
	case "status":
		if r := s.LastReport(); r != nil {
			return notifier.FormatRunReport(r)
		}
		return "No calculation run yet."
	case "band":
		if len(args) != 1 {
			return "Usage: /band SYMBOL"
		}
		return s.band(args[0])
	case "excluded":
		_, rejected, err := s.Engine.Eligibility(s.Ctx)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatExclusions(rejected)
	case "run":
		go s.RunOnce()
		return "Ingest and calculation started."
	default:
		return "Commands:\n• /status\n• /band SYMBOL\n• /excluded\n• /run"
	}
}

func (s *Scheduler) band(symbol string) string {
	assets, err := s.Store.ListActiveAssets(s.Ctx)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	symbol = strings.ToUpper(symbol)
	for _, a := range assets {
		if a.Symbol != symbol {
			continue
		}
		r, err := s.latestResult(a.ID)
		if err != nil {
			return fmt.Sprintf("No band result for %s: %v", symbol, err)
		}
		return notifier.FormatBand(a, r)
	}
	return fmt.Sprintf("Unknown symbol %s.", symbol)
}

// latestResult looks back a week for the most recent result.
func (s *Scheduler) latestResult(assetID string) (*model.BMSBResult, error) {
	day := model.UTCDay(s.now())
	var err error
	for i := 0; i < 7; i++ {
		var r *model.BMSBResult
		if r, err = s.Store.Result(s.Ctx, assetID, day.AddDate(0, 0, -i)); err == nil {
			return r, nil
		}
	}
	return nil, err
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		log.WithError(err).Error("send notification")
	}
}

func head(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
