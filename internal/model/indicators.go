package model

import "time"

// PricePosition describes where the price sits relative to the support band.
type PricePosition string

const (
	AboveBand PricePosition = "above_band"
	InBand    PricePosition = "in_band"
	BelowBand PricePosition = "below_band"
)

// Trend is the direction of a moving average week over week.
type Trend string

const (
	Increasing Trend = "increasing"
	Decreasing Trend = "decreasing"
)

// BandHealth is the overall classification of the band.
type BandHealth string

const (
	Healthy    BandHealth = "healthy"
	Weak       BandHealth = "weak"
	Stablecoin BandHealth = "stablecoin"
)

// IndicatorSnapshot holds the moving averages for the latest week and the week before.
type IndicatorSnapshot struct {
	SMA20     float64
	EMA21     float64
	SMA20Prev float64
	EMA21Prev float64
}

// BMSBResult is one persisted band calculation for an asset and day.
type BMSBResult struct {
	AssetID         string
	CalculationDate time.Time

	SMA20     float64
	EMA21     float64
	SMA20Prev float64
	EMA21Prev float64

	SupportLower float64
	SupportUpper float64
	CurrentPrice float64

	PricePosition PricePosition
	SMATrend      Trend
	EMATrend      Trend
	BandHealth    BandHealth
	IsApplicable  bool

	WeeksUsed int
}
