package calculator

import "errors"

// MinWeeklyPoints is the shortest weekly series the band can be computed from:
// 20 weeks for the SMA, one more for its previous value, one more for the EMA's previous value.
const MinWeeklyPoints = 22

var (
	// ErrInsufficientHistory is returned when fewer than MinWeeklyPoints weekly closes exist.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInvalidPriceData is returned for non-positive or non-finite prices and unordered input.
	ErrInvalidPriceData = errors.New("invalid price data")
)
