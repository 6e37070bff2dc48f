package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/splax/athlink/internal/alert"
	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
)

// ErrInvalidSample reports a reading that cannot be stored.
var ErrInvalidSample = errors.New("health: invalid sample")

// Stats periods.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	defaultAlertLimit   = 20
)

// Notifier is the detached event path.
type Notifier interface {
	Notify(userID, event string, payload any)
}

// Service ingests samples and serves health reads.
type Service struct {
	samples    repository.HealthRepository
	alerts     repository.AlertRepository
	snapshots  *cache.Store[domain.HealthSnapshot]
	engine     *alert.Engine
	thresholds alert.Thresholds
	notifier   Notifier
	logger     *slog.Logger
	ttl        time.Duration
	now        func() time.Time
}

// Deps groups Service collaborators.
type Deps struct {
	Samples    repository.HealthRepository
	Alerts     repository.AlertRepository
	Snapshots  *cache.Store[domain.HealthSnapshot]
	Engine     *alert.Engine
	Thresholds *alert.Thresholds
	Notifier   Notifier
	Logger     *slog.Logger
	TTL        time.Duration
}

// New constructs a Service.
func New(deps Deps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	thresholds := alert.DefaultThresholds
	if deps.Thresholds != nil {
		thresholds = *deps.Thresholds
	}
	return Service{
		samples:    deps.Samples,
		alerts:     deps.Alerts,
		snapshots:  deps.Snapshots,
		engine:     deps.Engine,
		thresholds: thresholds,
		notifier:   deps.Notifier,
		logger:     logger.With("component", "health"),
		ttl:        deps.TTL,
		now:        time.Now,
	}
}

// SampleInput is a reading submitted by a wearable or typed in manually.
type SampleInput struct {
	HeartRate     float64 `json:"heartRate"`
	FatigueLevel  float64 `json:"fatigueLevel"`
	RecoveryLevel float64 `json:"recoveryLevel"`
}

// IngestResult reports the stored sample and any alerts it raised.
type IngestResult struct {
	Sample domain.HealthSample `json:"sample"`
	Alerts []domain.Alert      `json:"alerts"`
}

// Ingest appends a sample, refreshes the live snapshot, evaluates alerts and
// notifies the athlete. Only the sample write can fail the call.
func (s Service) Ingest(ctx context.Context, userID string, in SampleInput) (IngestResult, error) {
	if err := validate(in); err != nil {
		return IngestResult{}, err
	}
	sample := domain.HealthSample{
		ID:            uuid.NewString(),
		UserID:        userID,
		HeartRate:     in.HeartRate,
		FatigueLevel:  in.FatigueLevel,
		RecoveryLevel: in.RecoveryLevel,
		Timestamp:     s.now().UTC(),
	}
	if err := s.samples.AppendSample(ctx, &sample); err != nil {
		return IngestResult{}, err
	}
	s.snapshots.WriteInvalidate(ctx, cache.Key(cache.KindHealth, userID), sample.Snapshot(), s.ttl)

	alerts, failed := s.engine.Persist(ctx, userID, alert.Evaluate(sample, s.thresholds))
	if failed > 0 {
		s.logger.Warn("sample stored with unpersisted alerts", "user_id", userID, "sample_id", sample.ID, "failed", failed)
	}

	s.notifier.Notify(userID, domain.EventHealthUpdate, sample)
	for _, a := range alerts {
		s.notifier.Notify(userID, domain.EventHealthAlert, a)
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return IngestResult{Sample: sample, Alerts: alerts}, nil
}

func validate(in SampleInput) error {
	for name, v := range map[string]float64{
		"heartRate":     in.HeartRate,
		"fatigueLevel":  in.FatigueLevel,
		"recoveryLevel": in.RecoveryLevel,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidSample, name)
		}
	}
	if in.HeartRate < 0 {
		return fmt.Errorf("%w: heartRate must not be negative", ErrInvalidSample)
	}
	return nil
}

// Current returns the live snapshot, falling back to the latest stored
// sample and finally to an empty snapshot.
func (s Service) Current(ctx context.Context, userID string) (domain.HealthSnapshot, error) {
	return s.snapshots.ReadThrough(ctx, cache.Key(cache.KindHealth, userID), func(ctx context.Context) (domain.HealthSnapshot, error) {
		latest, err := s.samples.LatestSample(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.HealthSnapshot{}, nil
		}
		if err != nil {
			return domain.HealthSnapshot{}, err
		}
		return latest.Snapshot(), nil
	}, s.ttl)
}

// HistoryQuery selects a page of samples. Zero From/To leave that side open.
type HistoryQuery struct {
	Page  int
	Limit int
	From  time.Time
	To    time.Time
}

// HistoryPage is one page of samples, newest first.
type HistoryPage struct {
	Samples    []domain.HealthSample `json:"healthData"`
	Pagination domain.Page           `json:"pagination"`
}

// History lists stored samples.
func (s Service) History(ctx context.Context, userID string, q HistoryQuery) (HistoryPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	filter := domain.HealthFilter{
		UserID: userID,
		From:   q.From,
		To:     q.To,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	samples, err := s.samples.ListSamples(ctx, filter)
	if err != nil {
		return HistoryPage{}, err
	}
	total, err := s.samples.CountSamples(ctx, filter)
	if err != nil {
		return HistoryPage{}, err
	}
	if samples == nil {
		samples = []domain.HealthSample{}
	}
	return HistoryPage{Samples: samples, Pagination: domain.NewPage(total, page, limit)}, nil
}

// Stats averages samples over period and returns per-metric trends in
// chronological order. Unknown periods fall back to a week.
func (s Service) Stats(ctx context.Context, userID, period string) (domain.HealthStats, error) {
	end := s.now().UTC()
	var start time.Time
	switch period {
	case PeriodDay:
		start = end.AddDate(0, 0, -1)
	case PeriodMonth:
		start = end.AddDate(0, -1, 0)
	default:
		period = PeriodWeek
		start = end.AddDate(0, 0, -7)
	}
	samples, err := s.samples.SamplesBetween(ctx, userID, start, end)
	if err != nil {
		return domain.HealthStats{}, err
	}
	return summarize(period, samples), nil
}

func summarize(period string, samples []domain.HealthSample) domain.HealthStats {
	stats := domain.HealthStats{
		Period:         period,
		Samples:        len(samples),
		HeartRateTrend: make([]domain.TrendPoint, 0, len(samples)),
		FatigueTrend:   make([]domain.TrendPoint, 0, len(samples)),
		RecoveryTrend:  make([]domain.TrendPoint, 0, len(samples)),
	}
	if len(samples) == 0 {
		return stats
	}
	var hr, fatigue, recovery float64
	for _, sm := range samples {
		hr += sm.HeartRate
		fatigue += sm.FatigueLevel
		recovery += sm.RecoveryLevel
		stats.HeartRateTrend = append(stats.HeartRateTrend, domain.TrendPoint{Timestamp: sm.Timestamp, Value: sm.HeartRate})
		stats.FatigueTrend = append(stats.FatigueTrend, domain.TrendPoint{Timestamp: sm.Timestamp, Value: sm.FatigueLevel})
		stats.RecoveryTrend = append(stats.RecoveryTrend, domain.TrendPoint{Timestamp: sm.Timestamp, Value: sm.RecoveryLevel})
	}
	n := float64(len(samples))
	stats.AverageHeartRate = hr / n
	stats.AverageFatigue = fatigue / n
	stats.AverageRecovery = recovery / n
	return stats
}

// Alerts returns the most recent alerts for userID.
func (s Service) Alerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error) {
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultAlertLimit
	}
	alerts, err := s.alerts.ListAlerts(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return alerts, nil
}
