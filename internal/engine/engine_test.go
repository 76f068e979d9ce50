package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandSentinel/internal/eligibility"
	"BandSentinel/internal/model"
	"BandSentinel/internal/observability"
	"BandSentinel/internal/store"
)

// firstMonday is the week after the first bucketed week (2024-01-01).
var firstMonday = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

// mondaySeries returns one Monday sample per price, each closing the prior week.
func mondaySeries(prices ...float64) []model.DailyPricePoint {
	out := make([]model.DailyPricePoint, len(prices))
	for i, p := range prices {
		out[i] = model.DailyPricePoint{Date: firstMonday.AddDate(0, 0, 7*i), Close: p}
	}
	return out
}

func linear(start float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func asset(id, symbol string, rank int, stable bool) model.Asset {
	return model.Asset{
		ID:        id,
		AssetMeta: model.AssetMeta{Symbol: symbol, Name: id, Rank: rank, IsStablecoin: stable},
		Active:    true,
	}
}

// calcDay is the Tuesday after the 25th Monday sample.
var calcDay = firstMonday.AddDate(0, 0, 7*24+1)

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertAssets(ctx, []model.Asset{
		asset("bitcoin", "BTC", 1, false),
		asset("tether", "USDT", 3, true),
		asset("fading", "FADE", 20, false),
		asset("young", "YNG", 50, false),
		asset("broken", "BRK", 60, false),
		asset("pax-gold", "PAXG", 40, false),
		asset("tether-gold", "XAUT", 30, false),
		asset("wrapped-bitcoin", "WBTC", 15, false),
	}))

	series := map[string][]float64{
		"bitcoin":         linear(100, 25),
		"tether":          flat(1, 25),
		"fading":          linear(200, 25),
		"young":           linear(10, 10),
		"broken":          append(linear(10, 24), 0),
		"pax-gold":        linear(2000, 25),
		"tether-gold":     linear(2000, 25),
		"wrapped-bitcoin": linear(100, 25),
	}
	// Fading rises then drops in the final week, turning its SMA down.
	series["fading"][24] = 1
	for id, prices := range series {
		require.NoError(t, st.UpsertDailyPrices(ctx, id, mondaySeries(prices...)))
	}
}

func newEngine(t *testing.T, st store.Store, metrics *observability.Metrics) *Engine {
	t.Helper()
	f, err := eligibility.NewFilter()
	require.NoError(t, err)
	return New(st, f, Options{Workers: 3, Metrics: metrics})
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seed(t, st)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e := newEngine(t, st, metrics)

	report, err := e.Run(ctx, calcDay)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 6, report.Computed)
	assert.Equal(t, 1, report.Insufficient)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 3, report.Excluded)
	assert.Equal(t, 0, report.Review)
	assert.Equal(t, 4, report.Healthy)
	assert.Equal(t, 1, report.Weak)

	btc, err := st.Result(ctx, "bitcoin", calcDay)
	require.NoError(t, err)
	assert.Equal(t, 114.5, btc.SMA20)
	assert.InDelta(t, 115.01525597994768, btc.EMA21, 1e-9)
	assert.Equal(t, model.AboveBand, btc.PricePosition)
	assert.Equal(t, model.Healthy, btc.BandHealth)
	assert.Equal(t, 25, btc.WeeksUsed)

	usdt, err := st.Result(ctx, "tether", calcDay)
	require.NoError(t, err)
	assert.Equal(t, model.Stablecoin, usdt.BandHealth)
	assert.False(t, usdt.IsApplicable)

	fading, err := st.Result(ctx, "fading", calcDay)
	require.NoError(t, err)
	assert.Equal(t, model.Weak, fading.BandHealth)
	assert.Equal(t, model.BelowBand, fading.PricePosition)

	_, err = st.Result(ctx, "young", calcDay)
	assert.ErrorIs(t, err, store.ErrNotFound)

	statuses, err := st.Statuses(ctx, calcDay)
	require.NoError(t, err)
	byAsset := make(map[string]*model.CalculationStatus, len(statuses))
	for _, s := range statuses {
		byAsset[s.AssetID] = s
		assert.Equal(t, report.RunID, s.RunID)
	}
	require.Len(t, byAsset, 8)
	assert.Equal(t, model.StatusInsufficientHistory, byAsset["young"].Status)
	assert.Equal(t, model.StatusInvalidPriceData, byAsset["broken"].Status)
	assert.NotEmpty(t, byAsset["broken"].Detail)
	assert.Equal(t, model.StatusOK, byAsset["bitcoin"].Status)

	excl, err := st.Exclusions(ctx, calcDay)
	require.NoError(t, err)
	reasons := make(map[string]string, len(excl))
	for _, x := range excl {
		reasons[x.Symbol] = x.Reason
	}
	assert.Equal(t, map[string]string{
		"USDT": eligibility.ReasonStablecoin,
		"PAXG": eligibility.ReasonDuplicateLowerRank,
		"WBTC": "explicit_wrapped",
	}, reasons)

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.Calculations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("success")))
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seed(t, st)
	e := newEngine(t, st, nil)

	_, err := e.Run(ctx, calcDay)
	require.NoError(t, err)
	first, err := st.LatestResults(ctx, calcDay)
	require.NoError(t, err)

	_, err = e.Run(ctx, calcDay)
	require.NoError(t, err)
	second, err := st.LatestResults(ctx, calcDay)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_ManualReview(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.UpsertAssets(ctx, []model.Asset{
		asset("aaa", "AAA", 0, false),
		asset("bbb", "BBB", 7, false),
	}))
	f, err := eligibility.NewFilter(eligibility.DualRolePair{Members: [2]string{"AAA", "BBB"}})
	require.NoError(t, err)
	e := New(st, f, Options{})

	report, err := e.Run(ctx, calcDay)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Review)
	assert.Equal(t, 2, report.Insufficient)

	excl, err := st.Exclusions(ctx, calcDay)
	require.NoError(t, err)
	require.Len(t, excl, 2)
	for _, x := range excl {
		assert.Equal(t, eligibility.ReasonManualReview, x.Reason)
	}
}

// failingPrices wraps a store whose price reads fail for one asset.
type failingPrices struct {
	*store.Memory
	assetID string
}

func (f *failingPrices) DailyPrices(ctx context.Context, assetID string, through time.Time) ([]model.DailyPricePoint, error) {
	if assetID == f.assetID {
		return nil, errors.New("connection reset")
	}
	return f.Memory.DailyPrices(ctx, assetID, through)
}

func TestRun_StoreErrorBecomesFailedStatus(t *testing.T) {
	ctx := context.Background()
	st := &failingPrices{Memory: store.NewMemory(), assetID: "bitcoin"}
	seed(t, st)
	e := newEngine(t, st, nil)

	report, err := e.Run(ctx, calcDay)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 5, report.Computed)

	statuses, err := st.Statuses(ctx, calcDay)
	require.NoError(t, err)
	for _, s := range statuses {
		if s.AssetID == "bitcoin" {
			assert.Equal(t, model.StatusFailed, s.Status)
			assert.Contains(t, s.Detail, "connection reset")
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	e := newEngine(t, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, calcDay)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEligibility(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	e := newEngine(t, st, nil)

	included, rejected, err := e.Eligibility(context.Background())
	require.NoError(t, err)
	assert.Len(t, included, 5)
	assert.Len(t, rejected, 3)
	assert.Equal(t, "bitcoin", included[0].ID)
}
