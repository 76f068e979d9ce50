package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"BandSentinel/internal/model"
)

// Memory is an in-memory Store used for development runs and tests.
type Memory struct {
	mu         sync.RWMutex
	assets     map[string]model.Asset
	prices     map[string]map[time.Time]float64
	results    map[string]model.BMSBResult // keyed by assetID|date
	statuses   map[string]model.CalculationStatus
	exclusions map[time.Time][]model.Exclusion
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assets:     make(map[string]model.Asset),
		prices:     make(map[string]map[time.Time]float64),
		results:    make(map[string]model.BMSBResult),
		statuses:   make(map[string]model.CalculationStatus),
		exclusions: make(map[time.Time][]model.Exclusion),
	}
}

var _ Store = (*Memory)(nil)

func dayKey(assetID string, date time.Time) string {
	return assetID + "|" + model.UTCDay(date).Format(dateLayout)
}

func (m *Memory) UpsertAssets(_ context.Context, assets []model.Asset) error {
	if err := validateAssets(assets); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assets {
		m.assets[a.ID] = a
	}
	return nil
}

func (m *Memory) ListAssets(_ context.Context) ([]model.Asset, error) {
	return m.listAssets(false), nil
}

func (m *Memory) ListActiveAssets(_ context.Context) ([]model.Asset, error) {
	return m.listAssets(true), nil
}

func (m *Memory) listAssets(activeOnly bool) []model.Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return rankLess(out[i], out[j]) })
	return out
}

func (m *Memory) UpsertDailyPrices(_ context.Context, assetID string, points []model.DailyPricePoint) error {
	if assetID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.prices[assetID]
	if !ok {
		series = make(map[time.Time]float64)
		m.prices[assetID] = series
	}
	for _, p := range points {
		series[model.UTCDay(p.Date)] = p.Close
	}
	return nil
}

func (m *Memory) DailyPrices(_ context.Context, assetID string, through time.Time) ([]model.DailyPricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := model.UTCDay(through)
	var out []model.DailyPricePoint
	for d, c := range m.prices[assetID] {
		if d.After(limit) {
			continue
		}
		out = append(out, model.DailyPricePoint{Date: d, Close: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) UpsertResult(_ context.Context, r *model.BMSBResult) error {
	if err := validateResult(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.CalculationDate = model.UTCDay(r.CalculationDate)
	m.results[dayKey(r.AssetID, r.CalculationDate)] = cp
	return nil
}

func (m *Memory) Result(_ context.Context, assetID string, date time.Time) (*model.BMSBResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[dayKey(assetID, date)]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) LatestResults(_ context.Context, date time.Time) ([]*model.BMSBResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := model.UTCDay(date)
	var out []*model.BMSBResult
	for _, r := range m.results {
		if r.CalculationDate.Equal(day) {
			cp := r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (m *Memory) RecordStatus(_ context.Context, s *model.CalculationStatus) error {
	if err := validateStatus(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.CalculationDate = model.UTCDay(s.CalculationDate)
	m.statuses[dayKey(s.AssetID, s.CalculationDate)] = cp
	return nil
}

func (m *Memory) Statuses(_ context.Context, date time.Time) ([]*model.CalculationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := model.UTCDay(date)
	var out []*model.CalculationStatus
	for _, s := range m.statuses {
		if s.CalculationDate.Equal(day) {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (m *Memory) ReplaceExclusions(_ context.Context, date time.Time, excl []model.Exclusion) error {
	day := model.UTCDay(date)
	rows := make([]model.Exclusion, len(excl))
	for i, e := range excl {
		if e.AssetID == "" {
			return ErrInvalidInput
		}
		e.Date = day
		rows[i] = e
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AssetID < rows[j].AssetID })
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exclusions[day] = rows
	return nil
}

func (m *Memory) Exclusions(_ context.Context, date time.Time) ([]model.Exclusion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.exclusions[model.UTCDay(date)]
	out := make([]model.Exclusion, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *Memory) PruneResults(_ context.Context, before time.Time) (int64, error) {
	limit := model.UTCDay(before)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.results {
		if r.CalculationDate.Before(limit) {
			delete(m.results, k)
			n++
		}
	}
	for k, s := range m.statuses {
		if s.CalculationDate.Before(limit) {
			delete(m.statuses, k)
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
