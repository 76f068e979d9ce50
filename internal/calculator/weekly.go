package calculator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"BandSentinel/internal/model"
)

// NormalizeDaily sorts raw samples by UTC day and keeps the last sample seen for each day.
func NormalizeDaily(points []model.DailyPricePoint) []model.DailyPricePoint {
	byDay := make(map[time.Time]float64, len(points))
	for _, p := range points {
		byDay[model.UTCDay(p.Date)] = p.Close
	}
	out := make([]model.DailyPricePoint, 0, len(byDay))
	for d, c := range byDay {
		out = append(out, model.DailyPricePoint{Date: d, Close: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ExtractWeeklyCloses turns a date-ordered daily series into one close per ISO week.
//
// The upstream feed stamps each day with its opening price, so a Monday sample is the
// close of the week that ended the day before. A Sunday sample only closes its own week
// when no following Monday exists yet. Any other trailing weekday leaves the week open and
// it contributes nothing.
func ExtractWeeklyCloses(daily []model.DailyPricePoint) ([]model.WeeklyClosingPoint, error) {
	if err := validateDaily(daily); err != nil {
		return nil, err
	}

	closes := make(map[time.Time]float64)
	for _, p := range daily {
		day := model.UTCDay(p.Date)
		if day.Weekday() == time.Monday {
			closes[day.AddDate(0, 0, -7)] = p.Close
		}
	}
	for _, p := range daily {
		day := model.UTCDay(p.Date)
		if day.Weekday() != time.Sunday {
			continue
		}
		weekStart := day.AddDate(0, 0, -6)
		if _, ok := closes[weekStart]; !ok {
			closes[weekStart] = p.Close
		}
	}

	weekly := make([]model.WeeklyClosingPoint, 0, len(closes))
	for ws, price := range closes {
		weekly = append(weekly, model.WeeklyClosingPoint{WeekStart: ws, Price: price})
	}
	sort.Slice(weekly, func(i, j int) bool { return weekly[i].WeekStart.Before(weekly[j].WeekStart) })
	return weekly, nil
}

// WeekStart returns the Monday (UTC) of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	day := model.UTCDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

func validateDaily(daily []model.DailyPricePoint) error {
	for i, p := range daily {
		if err := validPrice(p.Close); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPriceData, p.Date.Format("2006-01-02"), err)
		}
		if i > 0 && !model.UTCDay(daily[i-1].Date).Before(model.UTCDay(p.Date)) {
			return fmt.Errorf("%w: dates not strictly ascending at %s", ErrInvalidPriceData, p.Date.Format("2006-01-02"))
		}
	}
	return nil
}

func validPrice(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite price %v", v)
	}
	if v <= 0 {
		return fmt.Errorf("non-positive price %v", v)
	}
	return nil
}
