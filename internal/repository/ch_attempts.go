package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// AttemptReportRow is one row of the aggregated delivery report served from
// ClickHouse (CDC-fed from the MySQL ledger).
type AttemptReportRow struct {
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	EventType      string    `db:"event_type" json:"event_type"`
	Attempts       uint64    `db:"attempts" json:"attempts"`
	Successes      uint64    `db:"successes" json:"successes"`
	AvgLatencyMs   float64   `db:"avg_latency_ms" json:"avg_latency_ms"`
	LastAttemptAt  time.Time `db:"last_attempt_at" json:"last_attempt_at"`
}

// CHAttemptsRepository serves read-only delivery reports from ClickHouse.
type CHAttemptsRepository interface {
	ReportBySubscription(ctx context.Context, subscriptionID string, since time.Time, limit int) ([]AttemptReportRow, error)
}

type chAttemptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAttemptsRepository(ch *sqlx.DB) CHAttemptsRepository {
	return &chAttemptsRepository{ch: ch}
}

func (r *chAttemptsRepository) ReportBySubscription(ctx context.Context, subscriptionID string, since time.Time, limit int) ([]AttemptReportRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := `
		SELECT subscription_id,
		       event_type,
		       count() AS attempts,
		       countIf(success = 1) AS successes,
		       avg(latency_ms) AS avg_latency_ms,
		       max(created_at) AS last_attempt_at
		FROM webhooks.attempts_latest
		WHERE created_at >= ?
	`
	args := []any{since}

	if subscriptionID != "" {
		q += " AND subscription_id = ?"
		args = append(args, subscriptionID)
	}

	q += " GROUP BY subscription_id, event_type ORDER BY last_attempt_at DESC LIMIT ?"
	args = append(args, limit)

	var rows []AttemptReportRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
