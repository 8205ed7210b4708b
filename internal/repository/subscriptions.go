package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionsRepository defines persistence for the subscriptions table,
// including the atomic health bookkeeping used by delivery chains.
type SubscriptionsRepository interface {
	Insert(ctx context.Context, s model.Subscription) error
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	List(ctx context.Context, limit, offset int) ([]model.Subscription, error)
	UpdateConfig(ctx context.Context, s model.Subscription) error
	Delete(ctx context.Context, id string) error

	// ListActive returns deliverable (active or failing, i.e. not yet
	// suspended) subscriptions already narrowed by scope; event-filter
	// matching stays in Go (model.Subscription.Matches).
	ListActive(ctx context.Context, scope *int64) ([]model.Subscription, error)

	// StatusOf is the live recheck before a scheduled retry fires.
	// Returns ErrSubscriptionNotFound when the row is gone.
	StatusOf(ctx context.Context, id string) (model.SubscriptionStatus, error)

	// RecordSuccess resets the consecutive-failure counter and clears a
	// failing status back to active.
	RecordSuccess(ctx context.Context, id string) error

	// RecordChainFailure atomically increments the consecutive-failure
	// counter for one finished delivery chain and suspends the subscription
	// once the counter reaches threshold. Returns the resulting status.
	RecordChainFailure(ctx context.Context, id string, threshold int) (model.SubscriptionStatus, error)

	// Reactivate is the explicit operator action that returns a suspended
	// subscription to active and zeroes its failure counter.
	Reactivate(ctx context.Context, id string) error
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

const subscriptionColumns = `
	id, owner_id, url, secret, events, headers, verify_ssl, max_retries,
	max_concurrency, status, consecutive_failures, last_success_at,
	last_failure_at, created_at, updated_at`

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, s model.Subscription) error {
	const q = `
		INSERT INTO subscriptions
			(id, owner_id, url, secret, events, headers, verify_ssl,
			 max_retries, max_concurrency, status, consecutive_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`
	events, err := s.Events.Value()
	if err != nil {
		return err
	}
	headers, err := s.Headers.Value()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.OwnerID, s.URL, s.Secret, events, headers, s.VerifySSL,
		s.MaxRetries, s.MaxConcurrency, s.Status.String(),
	)
	return err
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) List(ctx context.Context, limit, offset int) ([]model.Subscription, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var subs []model.Subscription
	err := r.db.SelectContext(ctx, &subs,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	return subs, err
}

func (r *SubscriptionsRepositoryImpl) UpdateConfig(ctx context.Context, s model.Subscription) error {
	const q = `
		UPDATE subscriptions
		SET url = ?, secret = ?, events = ?, headers = ?, verify_ssl = ?,
		    max_retries = ?, max_concurrency = ?, updated_at = NOW()
		WHERE id = ?
	`
	events, err := s.Events.Value()
	if err != nil {
		return err
	}
	headers, err := s.Headers.Value()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, q,
		s.URL, s.Secret, events, headers, s.VerifySSL,
		s.MaxRetries, s.MaxConcurrency, s.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SubscriptionsRepositoryImpl) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SubscriptionsRepositoryImpl) ListActive(ctx context.Context, scope *int64) ([]model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status IN ('active', 'failing')`
	args := []any{}

	if scope != nil {
		q += ` AND (owner_id IS NULL OR owner_id = ?)`
		args = append(args, *scope)
	}

	var subs []model.Subscription
	if err := r.db.SelectContext(ctx, &subs, q, args...); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriptionsRepositoryImpl) StatusOf(ctx context.Context, id string) (model.SubscriptionStatus, error) {
	var st string
	err := r.db.QueryRowxContext(ctx,
		`SELECT status FROM subscriptions WHERE id = ?`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSubscriptionNotFound
	}
	if err != nil {
		return "", err
	}
	return model.SubscriptionStatus(st), nil
}

func (r *SubscriptionsRepositoryImpl) RecordSuccess(ctx context.Context, id string) error {
	const q = `
		UPDATE subscriptions
		SET consecutive_failures = 0,
		    status = IF(status = 'failing', 'active', status),
		    last_success_at = NOW(),
		    updated_at = NOW()
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *SubscriptionsRepositoryImpl) RecordChainFailure(ctx context.Context, id string, threshold int) (model.SubscriptionStatus, error) {
	// Single statement so concurrent chains for different events cannot lose
	// counter updates. MySQL applies SET assignments left to right, so the
	// status expression already sees the incremented counter.
	const q = `
		UPDATE subscriptions
		SET consecutive_failures = consecutive_failures + 1,
		    status = IF(consecutive_failures >= ?, 'suspended',
		                IF(status = 'active', 'failing', status)),
		    last_failure_at = NOW(),
		    updated_at = NOW()
		WHERE id = ? AND status <> 'suspended'
	`
	if _, err := r.db.ExecContext(ctx, q, threshold, id); err != nil {
		return "", err
	}
	return r.StatusOf(ctx, id)
}

func (r *SubscriptionsRepositoryImpl) Reactivate(ctx context.Context, id string) error {
	const q = `
		UPDATE subscriptions
		SET status = 'active', consecutive_failures = 0, updated_at = NOW()
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
