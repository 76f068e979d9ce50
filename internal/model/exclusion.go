package model

import "time"

// ExclusionVerdict is the eligibility filter's decision for one asset.
type ExclusionVerdict struct {
	Exclude bool
	Reason  string // empty when included
}

// Exclusion is a rejected asset recorded for display.
type Exclusion struct {
	AssetID string
	Symbol  string
	Reason  string
	Date    time.Time
}
