package domain

import "time"

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Alert types produced by threshold evaluation.
const (
	AlertHeartRateLow  = "heart-rate-low"
	AlertHeartRateHigh = "heart-rate-high"
	AlertFatigueHigh   = "fatigue-high"
	AlertRecoveryLow   = "recovery-low"
)

// Alert is an immutable record of a threshold violation.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"createdAt"`
}
