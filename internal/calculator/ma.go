package calculator

import (
	"errors"
	"fmt"

	"BandSentinel/internal/model"
)

const (
	SMAPeriod = 20
	EMAPeriod = 21
)

// emaAlpha is the EMA(21) smoothing factor 2/(21+1).
const emaAlpha = 2.0 / (EMAPeriod + 1.0)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// CalculateEMA seeds with the earliest price and rolls forward with factor alpha
// through the latest one. It is not seeded with an SMA.
func CalculateEMA(prices []float64, alpha float64) (float64, error) {
	if len(prices) == 0 {
		return 0, errors.New("not enough data for EMA calculation")
	}
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*alpha + ema*(1-alpha)
	}
	return ema, nil
}

// ComputeIndicators returns SMA(20) and EMA(21) for the latest week and for the series
// with its latest week removed.
func ComputeIndicators(weekly []model.WeeklyClosingPoint) (model.IndicatorSnapshot, error) {
	if len(weekly) < MinWeeklyPoints {
		return model.IndicatorSnapshot{}, fmt.Errorf("%w: %d weekly closes, need %d", ErrInsufficientHistory, len(weekly), MinWeeklyPoints)
	}
	prices, err := extractPrices(weekly)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}
	prev := prices[:len(prices)-1]

	var snap model.IndicatorSnapshot
	if snap.SMA20, err = CalculateSMA(prices, SMAPeriod); err != nil {
		return model.IndicatorSnapshot{}, err
	}
	if snap.SMA20Prev, err = CalculateSMA(prev, SMAPeriod); err != nil {
		return model.IndicatorSnapshot{}, err
	}
	if snap.EMA21, err = CalculateEMA(prices, emaAlpha); err != nil {
		return model.IndicatorSnapshot{}, err
	}
	if snap.EMA21Prev, err = CalculateEMA(prev, emaAlpha); err != nil {
		return model.IndicatorSnapshot{}, err
	}
	return snap, nil
}

func extractPrices(weekly []model.WeeklyClosingPoint) ([]float64, error) {
	prices := make([]float64, len(weekly))
	for i, w := range weekly {
		if err := validPrice(w.Price); err != nil {
			return nil, fmt.Errorf("%w: week of %s: %v", ErrInvalidPriceData, w.WeekStart.Format("2006-01-02"), err)
		}
		prices[i] = w.Price
	}
	return prices, nil
}
