package model

import "time"

// DailyPricePoint is one daily price sample for an asset. Date is truncated to a UTC day.
type DailyPricePoint struct {
	Date  time.Time
	Close float64
}

// WeeklyClosingPoint is the closing price of one ISO week, keyed by its Monday (UTC).
type WeeklyClosingPoint struct {
	WeekStart time.Time
	Price     float64
}

// AssetMeta is the registry metadata the eligibility filter reads.
type AssetMeta struct {
	Symbol       string
	Name         string
	IsStablecoin bool
	Rank         int // 0 means unknown
}

// Asset is a tracked asset as stored in the registry.
type Asset struct {
	ID string // market-data provider coin id
	AssetMeta
	Active    bool
	UpdatedAt time.Time
}

// RankedSymbol is one entry of the full ranked universe.
type RankedSymbol struct {
	Symbol string
	Rank   int
}

// Universe extracts the ranked symbol list from a set of assets.
func Universe(assets []Asset) []RankedSymbol {
	out := make([]RankedSymbol, 0, len(assets))
	for _, a := range assets {
		out = append(out, RankedSymbol{Symbol: a.Symbol, Rank: a.Rank})
	}
	return out
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
