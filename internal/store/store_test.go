package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandSentinel/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleResult(assetID string, date time.Time, price float64) *model.BMSBResult {
	return &model.BMSBResult{
		AssetID:         assetID,
		CalculationDate: date,
		SMA20:           114.5,
		EMA21:           115.01525597994768,
		SMA20Prev:       113.5,
		EMA21Prev:       114.11678157794246,
		SupportLower:    114.5,
		SupportUpper:    115.01525597994768,
		CurrentPrice:    price,
		PricePosition:   model.AboveBand,
		SMATrend:        model.Increasing,
		EMATrend:        model.Increasing,
		BandHealth:      model.Healthy,
		IsApplicable:    true,
		WeeksUsed:       25,
	}
}

// testStoreContract runs the behaviour every Store implementation must share.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("assets", func(t *testing.T) {
		err := s.UpsertAssets(ctx, []model.Asset{
			{ID: "ethereum", AssetMeta: model.AssetMeta{Symbol: "ETH", Name: "Ethereum", Rank: 2}, Active: true},
			{ID: "mystery", AssetMeta: model.AssetMeta{Symbol: "MYS", Name: "Mystery"}, Active: true},
			{ID: "bitcoin", AssetMeta: model.AssetMeta{Symbol: "BTC", Name: "Bitcoin", Rank: 1}, Active: true},
			{ID: "tether", AssetMeta: model.AssetMeta{Symbol: "USDT", Name: "Tether", Rank: 3, IsStablecoin: true}, Active: false},
		})
		require.NoError(t, err)

		all, err := s.ListAssets(ctx)
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, a := range all {
			ids[i] = a.ID
		}
		assert.Equal(t, []string{"bitcoin", "ethereum", "tether", "mystery"}, ids)
		assert.True(t, all[2].IsStablecoin)

		active, err := s.ListActiveAssets(ctx)
		require.NoError(t, err)
		require.Len(t, active, 3)

		// Re-upsert deactivates.
		eth := all[1]
		eth.Active = false
		require.NoError(t, s.UpsertAssets(ctx, []model.Asset{eth}))
		active, err = s.ListActiveAssets(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "bitcoin", active[0].ID)

		assert.ErrorIs(t, s.UpsertAssets(ctx, []model.Asset{{ID: "x"}}), ErrInvalidInput)
	})

	t.Run("daily prices", func(t *testing.T) {
		require.NoError(t, s.UpsertDailyPrices(ctx, "bitcoin", []model.DailyPricePoint{
			{Date: day(2024, 1, 3), Close: 3},
			{Date: day(2024, 1, 1), Close: 1},
			{Date: day(2024, 1, 2), Close: 2},
		}))
		// Same date supersedes.
		require.NoError(t, s.UpsertDailyPrices(ctx, "bitcoin", []model.DailyPricePoint{
			{Date: day(2024, 1, 2).Add(15 * time.Hour), Close: 22},
		}))

		pts, err := s.DailyPrices(ctx, "bitcoin", day(2024, 1, 2))
		require.NoError(t, err)
		require.Len(t, pts, 2)
		assert.True(t, pts[0].Date.Equal(day(2024, 1, 1)))
		assert.Equal(t, 22.0, pts[1].Close)

		pts, err = s.DailyPrices(ctx, "bitcoin", day(2024, 2, 1))
		require.NoError(t, err)
		assert.Len(t, pts, 3)

		pts, err = s.DailyPrices(ctx, "unknown", day(2024, 2, 1))
		require.NoError(t, err)
		assert.Empty(t, pts)

		assert.ErrorIs(t, s.UpsertDailyPrices(ctx, "", nil), ErrInvalidInput)
	})

	t.Run("results", func(t *testing.T) {
		d1, d2 := day(2024, 6, 1), day(2024, 6, 2)

		_, err := s.Result(ctx, "bitcoin", d1)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.UpsertResult(ctx, sampleResult("bitcoin", d1, 120)))
		require.NoError(t, s.UpsertResult(ctx, sampleResult("bitcoin", d1, 124)))
		require.NoError(t, s.UpsertResult(ctx, sampleResult("ethereum", d1, 50)))
		require.NoError(t, s.UpsertResult(ctx, sampleResult("bitcoin", d2, 125)))

		got, err := s.Result(ctx, "bitcoin", d1)
		require.NoError(t, err)
		assert.Equal(t, sampleResult("bitcoin", d1, 124), got)

		list, err := s.LatestResults(ctx, d1)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "bitcoin", list[0].AssetID)
		assert.Equal(t, "ethereum", list[1].AssetID)

		assert.ErrorIs(t, s.UpsertResult(ctx, &model.BMSBResult{}), ErrInvalidInput)
	})

	t.Run("statuses", func(t *testing.T) {
		d := day(2024, 6, 1)
		require.NoError(t, s.RecordStatus(ctx, &model.CalculationStatus{
			AssetID: "mystery", CalculationDate: d, Status: model.StatusFailed, RunID: "r1",
		}))
		require.NoError(t, s.RecordStatus(ctx, &model.CalculationStatus{
			AssetID: "mystery", CalculationDate: d, Status: model.StatusInsufficientHistory,
			Detail: "12 weekly points", RunID: "r2",
		}))
		require.NoError(t, s.RecordStatus(ctx, &model.CalculationStatus{
			AssetID: "bitcoin", CalculationDate: d, Status: model.StatusOK, RunID: "r2",
		}))

		list, err := s.Statuses(ctx, d)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "bitcoin", list[0].AssetID)
		assert.Equal(t, model.StatusInsufficientHistory, list[1].Status)
		assert.Equal(t, "12 weekly points", list[1].Detail)
		assert.Equal(t, "r2", list[1].RunID)

		assert.ErrorIs(t, s.RecordStatus(ctx, &model.CalculationStatus{AssetID: "x", CalculationDate: d}), ErrInvalidInput)
	})

	t.Run("exclusions", func(t *testing.T) {
		d := day(2024, 6, 1)
		require.NoError(t, s.ReplaceExclusions(ctx, d, []model.Exclusion{
			{AssetID: "tether", Symbol: "USDT", Reason: "database_stablecoin"},
			{AssetID: "wrapped-bitcoin", Symbol: "WBTC", Reason: "explicit_wrapped"},
		}))
		require.NoError(t, s.ReplaceExclusions(ctx, d, []model.Exclusion{
			{AssetID: "wrapped-bitcoin", Symbol: "WBTC", Reason: "explicit_wrapped"},
		}))

		got, err := s.Exclusions(ctx, d)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "explicit_wrapped", got[0].Reason)
		assert.True(t, got[0].Date.Equal(d))

		got, err = s.Exclusions(ctx, day(2000, 1, 1))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("prune", func(t *testing.T) {
		n, err := s.PruneResults(ctx, day(2024, 6, 2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = s.Result(ctx, "bitcoin", day(2024, 6, 1))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Result(ctx, "bitcoin", day(2024, 6, 2))
		assert.NoError(t, err)

		statuses, err := s.Statuses(ctx, day(2024, 6, 1))
		require.NoError(t, err)
		assert.Empty(t, statuses)
	})
}

func TestMemory(t *testing.T) {
	testStoreContract(t, NewMemory())
}

func TestMemory_CopiesOnRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := day(2024, 6, 1)
	require.NoError(t, m.UpsertResult(ctx, sampleResult("bitcoin", d, 1)))

	got, err := m.Result(ctx, "bitcoin", d)
	require.NoError(t, err)
	got.CurrentPrice = 999

	again, err := m.Result(ctx, "bitcoin", d)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.CurrentPrice)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "")
	assert.Error(t, err)
}
