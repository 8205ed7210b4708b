package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

// AttemptQuery filters the ledger read path. Zero values mean "no filter".
type AttemptQuery struct {
	SubscriptionID string
	EventType      string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// AttemptsRepository is the delivery ledger: append and read only. The sole
// delete is the retention purge, which never runs in the delivery path.
type AttemptsRepository interface {
	Append(ctx context.Context, a model.DeliveryAttempt) error
	Query(ctx context.Context, q AttemptQuery) ([]model.DeliveryAttempt, error)

	// PurgeOlderThan deletes ledger rows past the retention window and
	// returns the number removed. Maintenance only.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AttemptsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAttemptsRepository(db *sqlx.DB) *AttemptsRepositoryImpl {
	return &AttemptsRepositoryImpl{db: db}
}

func (r *AttemptsRepositoryImpl) Append(ctx context.Context, a model.DeliveryAttempt) error {
	const q = `
		INSERT INTO delivery_attempts
			(attempt_id, subscription_id, event_id, event_type, attempt_no,
			 request_body, status_code, response_snippet, success, skipped,
			 error, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		a.AttemptID, a.SubscriptionID, a.EventID, a.EventType, a.AttemptNo,
		a.RequestBody, a.StatusCode, a.ResponseSnippet, a.Success, a.Skipped,
		a.Error, a.LatencyMs,
	)
	return err
}

func (r *AttemptsRepositoryImpl) Query(ctx context.Context, q AttemptQuery) ([]model.DeliveryAttempt, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	sqlq := `
		SELECT id, attempt_id, subscription_id, event_id, event_type,
		       attempt_no, request_body, status_code, response_snippet,
		       success, skipped, error, latency_ms, created_at
		FROM delivery_attempts
		WHERE 1 = 1
	`
	args := []any{}

	if q.SubscriptionID != "" {
		sqlq += " AND subscription_id = ?"
		args = append(args, q.SubscriptionID)
	}
	if q.EventType != "" {
		sqlq += " AND event_type = ?"
		args = append(args, q.EventType)
	}
	if !q.From.IsZero() {
		sqlq += " AND created_at >= ?"
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		sqlq += " AND created_at < ?"
		args = append(args, q.To)
	}

	sqlq += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	var rows []model.DeliveryAttempt
	if err := r.db.SelectContext(ctx, &rows, sqlq, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AttemptsRepositoryImpl) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM delivery_attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
