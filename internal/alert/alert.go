// Package alert evaluates health samples against a threshold table and
// records the resulting alerts.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/metrics"
)

// Bound is an inclusive range. A reading outside [Min, Max] violates it.
type Bound struct {
	Min float64
	Max float64
}

// Thresholds is the table samples are evaluated against.
type Thresholds struct {
	HeartRate Bound
	Fatigue   Bound
	Recovery  Bound
}

// DefaultThresholds mirrors the bounds athletes are onboarded with. The
// recovery ceiling is never checked; only readings below its floor alert.
var DefaultThresholds = Thresholds{
	HeartRate: Bound{Min: 40, Max: 180},
	Fatigue:   Bound{Min: 0, Max: 80},
	Recovery:  Bound{Min: 0, Max: 100},
}

// Evaluate returns the alerts raised by sample, in heart rate, fatigue,
// recovery order. A zero heart rate means the reading was not reported.
// Returned alerts carry no id or timestamp; Persist assigns those.
func Evaluate(sample domain.HealthSample, t Thresholds) []domain.Alert {
	var alerts []domain.Alert

	if hr := sample.HeartRate; hr != 0 {
		switch {
		case hr < t.HeartRate.Min:
			alerts = append(alerts, domain.Alert{
				Type:      domain.AlertHeartRateLow,
				Severity:  domain.SeverityWarning,
				Message:   fmt.Sprintf("Your heart rate is too low (%s bpm)", format(hr)),
				Value:     hr,
				Threshold: t.HeartRate.Min,
			})
		case hr > t.HeartRate.Max:
			alerts = append(alerts, domain.Alert{
				Type:      domain.AlertHeartRateHigh,
				Severity:  domain.SeverityDanger,
				Message:   fmt.Sprintf("Your heart rate is too high (%s bpm)", format(hr)),
				Value:     hr,
				Threshold: t.HeartRate.Max,
			})
		}
	}

	if f := sample.FatigueLevel; f > t.Fatigue.Max {
		alerts = append(alerts, domain.Alert{
			Type:      domain.AlertFatigueHigh,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("Your fatigue level is too high (%s%%)", format(f)),
			Value:     f,
			Threshold: t.Fatigue.Max,
		})
	}

	if r := sample.RecoveryLevel; r < t.Recovery.Min {
		alerts = append(alerts, domain.Alert{
			Type:      domain.AlertRecoveryLow,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("Your recovery level is too low (%s%%)", format(r)),
			Value:     r,
			Threshold: t.Recovery.Min,
		})
	}

	for i := range alerts {
		alerts[i].UserID = sample.UserID
	}
	return alerts
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Appender is the durable sink for alerts.
type Appender interface {
	AppendAlert(ctx context.Context, alert *domain.Alert) error
}

// Engine persists evaluated alerts.
type Engine struct {
	store   Appender
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(store Appender, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, log: logger.With("component", "alert"), metrics: m, now: time.Now}
}

// Persist writes each alert independently. It returns every alert with its
// id and timestamp filled in, whether or not the write succeeded, and the
// number of writes that failed. Failures are logged.
func (e *Engine) Persist(ctx context.Context, userID string, alerts []domain.Alert) ([]domain.Alert, int) {
	out := make([]domain.Alert, 0, len(alerts))
	failed := 0
	for _, a := range alerts {
		a.ID = uuid.NewString()
		a.UserID = userID
		a.CreatedAt = e.now().UTC()
		e.metrics.AlertRaised(a.Type, string(a.Severity))
		if err := e.store.AppendAlert(ctx, &a); err != nil {
			failed++
			e.metrics.AlertPersistFailed()
			e.log.Error("persist alert failed", "user_id", userID, "type", a.Type, "error", err)
		}
		out = append(out, a)
	}
	return out, failed
}
