package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/athlink/internal/domain"
)

const sampleColumns = `id, user_id, heart_rate, fatigue_level, recovery_level, recorded_at`

func scanSample(row pgx.CollectableRow) (domain.HealthSample, error) {
	var s domain.HealthSample
	err := row.Scan(&s.ID, &s.UserID, &s.HeartRate, &s.FatigueLevel, &s.RecoveryLevel, &s.Timestamp)
	return s, err
}

// AppendSample inserts an immutable health sample.
func (r *Repository) AppendSample(ctx context.Context, sample *domain.HealthSample) error {
	if sample == nil {
		return fmt.Errorf("sample required")
	}
	const query = `INSERT INTO health_samples (` + sampleColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, sample.ID, sample.UserID, sample.HeartRate, sample.FatigueLevel, sample.RecoveryLevel, sample.Timestamp)
	return mapError(err)
}

// LatestSample returns the most recent sample for a user.
func (r *Repository) LatestSample(ctx context.Context, userID string) (*domain.HealthSample, error) {
	const query = `SELECT ` + sampleColumns + ` FROM health_samples WHERE user_id = $1 ORDER BY recorded_at DESC LIMIT 1`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	sample, err := pgx.CollectExactlyOneRow(rows, scanSample)
	if err != nil {
		return nil, mapError(err)
	}
	return &sample, nil
}

// ListSamples returns samples newest first, honouring the filter window and paging.
func (r *Repository) ListSamples(ctx context.Context, filter domain.HealthFilter) ([]domain.HealthSample, error) {
	where, args := sampleWhere(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM health_samples WHERE %s ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`,
		sampleColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	samples, err := pgx.CollectRows(rows, scanSample)
	if err != nil {
		return nil, mapError(err)
	}
	return samples, nil
}

// CountSamples counts samples matching the filter window.
func (r *Repository) CountSamples(ctx context.Context, filter domain.HealthFilter) (int, error) {
	where, args := sampleWhere(filter)
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM health_samples WHERE `+where, args...).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// SamplesBetween returns samples in [from, to] oldest first.
func (r *Repository) SamplesBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.HealthSample, error) {
	const query = `SELECT ` + sampleColumns + ` FROM health_samples
		WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`
	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	samples, err := pgx.CollectRows(rows, scanSample)
	if err != nil {
		return nil, mapError(err)
	}
	return samples, nil
}

func sampleWhere(filter domain.HealthFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{filter.UserID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("recorded_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// AppendAlert inserts an alert record.
func (r *Repository) AppendAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert required")
	}
	const query = `INSERT INTO alerts (id, user_id, type, severity, message, value, threshold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, alert.ID, alert.UserID, alert.Type, string(alert.Severity), alert.Message, alert.Value, alert.Threshold, alert.CreatedAt)
	return mapError(err)
}

// ListAlerts returns the latest alerts for a user.
func (r *Repository) ListAlerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error) {
	const query = `SELECT id, user_id, type, severity, message, value, threshold, created_at
		FROM alerts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Alert, error) {
		var (
			a        domain.Alert
			severity string
		)
		err := row.Scan(&a.ID, &a.UserID, &a.Type, &severity, &a.Message, &a.Value, &a.Threshold, &a.CreatedAt)
		a.Severity = domain.Severity(severity)
		return a, err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return alerts, nil
}
