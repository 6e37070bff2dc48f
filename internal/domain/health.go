package domain

import "time"

// HealthSample is one append-only wearable or manual reading.
type HealthSample struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	HeartRate     float64   `json:"heartRate"`
	FatigueLevel  float64   `json:"fatigueLevel"`
	RecoveryLevel float64   `json:"recoveryLevel"`
	Timestamp     time.Time `json:"timestamp"`
}

// HealthSnapshot is the live status cached under the health key.
type HealthSnapshot struct {
	HeartRate     float64    `json:"heartRate"`
	FatigueLevel  float64    `json:"fatigueLevel"`
	RecoveryLevel float64    `json:"recoveryLevel"`
	LastUpdated   *time.Time `json:"lastUpdated"`
}

// Snapshot converts a sample into the cached live status.
func (s HealthSample) Snapshot() HealthSnapshot {
	ts := s.Timestamp
	return HealthSnapshot{
		HeartRate:     s.HeartRate,
		FatigueLevel:  s.FatigueLevel,
		RecoveryLevel: s.RecoveryLevel,
		LastUpdated:   &ts,
	}
}

// HealthFilter narrows history queries. Zero From/To means unbounded.
type HealthFilter struct {
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// TrendPoint is a single value in a metric series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// HealthStats aggregates samples over a period.
type HealthStats struct {
	Period           string       `json:"period"`
	Samples          int          `json:"samples"`
	AverageHeartRate float64      `json:"averageHeartRate"`
	AverageFatigue   float64      `json:"averageFatigue"`
	AverageRecovery  float64      `json:"averageRecovery"`
	HeartRateTrend   []TrendPoint `json:"heartRateTrend"`
	FatigueTrend     []TrendPoint `json:"fatigueTrend"`
	RecoveryTrend    []TrendPoint `json:"recoveryTrend"`
}
