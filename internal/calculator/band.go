package calculator

import (
	"math"
	"time"

	"BandSentinel/internal/model"
)

// Classify derives the band bounds, price position, trends and health from a snapshot.
func Classify(snap model.IndicatorSnapshot, currentPrice float64, isStablecoin bool) model.BMSBResult {
	r := model.BMSBResult{
		SMA20:        snap.SMA20,
		EMA21:        snap.EMA21,
		SMA20Prev:    snap.SMA20Prev,
		EMA21Prev:    snap.EMA21Prev,
		SupportLower: math.Min(snap.SMA20, snap.EMA21),
		SupportUpper: math.Max(snap.SMA20, snap.EMA21),
		CurrentPrice: currentPrice,
		SMATrend:     trend(snap.SMA20, snap.SMA20Prev),
		EMATrend:     trend(snap.EMA21, snap.EMA21Prev),
		IsApplicable: true,
	}

	switch {
	case currentPrice > r.SupportUpper:
		r.PricePosition = model.AboveBand
	case currentPrice < r.SupportLower:
		r.PricePosition = model.BelowBand
	default:
		r.PricePosition = model.InBand
	}

	switch {
	case isStablecoin:
		r.BandHealth = model.Stablecoin
		r.IsApplicable = false
	case r.SMATrend == model.Increasing && r.EMATrend == model.Increasing:
		r.BandHealth = model.Healthy
	default:
		r.BandHealth = model.Weak
	}
	return r
}

// ClassifyWeekly computes indicators over a weekly series and classifies the band,
// using the latest weekly close as the current price.
func ClassifyWeekly(weekly []model.WeeklyClosingPoint, isStablecoin bool) (*model.BMSBResult, error) {
	snap, err := ComputeIndicators(weekly)
	if err != nil {
		return nil, err
	}
	r := Classify(snap, weekly[len(weekly)-1].Price, isStablecoin)
	r.WeeksUsed = len(weekly)
	return &r, nil
}

// Analyze runs the full chain for one asset: weekly extraction, indicators, classification.
func Analyze(assetID string, calcDate time.Time, daily []model.DailyPricePoint, isStablecoin bool) (*model.BMSBResult, error) {
	weekly, err := ExtractWeeklyCloses(daily)
	if err != nil {
		return nil, err
	}
	r, err := ClassifyWeekly(weekly, isStablecoin)
	if err != nil {
		return nil, err
	}
	r.AssetID = assetID
	r.CalculationDate = model.UTCDay(calcDate)
	return r, nil
}

// trend has no flat state: an unchanged average counts as decreasing.
func trend(current, prev float64) model.Trend {
	if current > prev {
		return model.Increasing
	}
	return model.Decreasing
}
