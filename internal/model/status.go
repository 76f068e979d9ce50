package model

import "time"

// StatusKind is the outcome of one asset's calculation.
type StatusKind string

const (
	StatusOK                  StatusKind = "ok"
	StatusInsufficientHistory StatusKind = "insufficient_history"
	StatusInvalidPriceData    StatusKind = "invalid_price_data"
	StatusFailed              StatusKind = "failed"
)

// CalculationStatus records whether an asset was computable on a given day.
type CalculationStatus struct {
	AssetID         string
	CalculationDate time.Time
	Status          StatusKind
	Detail          string
	RunID           string
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	RunID           string
	CalculationDate time.Time
	StartedAt       time.Time
	Duration        time.Duration

	Computed     int
	Insufficient int
	Invalid      int
	Failed       int
	Excluded     int
	Review       int

	Healthy int
	Weak    int
}
