package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestInsertMarshalsJSONColumns(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(
			"01ARZ3NDEKTSV4RRFFQ69G5FAV", nil, "https://example.com/hook",
			"s3cr3t-s3cr3t-s3", `["post.published"]`, `{"X-Custom":"1"}`,
			true, 3, 1, "active",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), model.Subscription{
		ID:             "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		URL:            "https://example.com/hook",
		Secret:         "s3cr3t-s3cr3t-s3",
		Events:         model.StringList{"post.published"},
		Headers:        model.StringMap{"X-Custom": "1"},
		VerifySSL:      true,
		MaxRetries:     3,
		MaxConcurrency: 1,
		Status:         model.SubscriptionActive,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusOfNotFound(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	mock.ExpectQuery(`SELECT status FROM subscriptions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.StatusOf(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestRecordChainFailureReturnsNewStatus(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	mock.ExpectExec(`UPDATE subscriptions`).
		WithArgs(5, "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT status FROM subscriptions`).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("suspended"))

	st, err := repo.RecordChainFailure(context.Background(), "sub-1", 5)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionSuspended, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// MySQL applies UPDATE assignments left to right, so by the time the status
// expression runs, consecutive_failures already holds the incremented value.
// The comparison must therefore be against the bare column; `+ 1` there would
// suspend one chain early.
func TestRecordChainFailureComparesUpdatedCounter(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	mock.ExpectExec(`SET consecutive_failures = consecutive_failures \+ 1, status = IF\(consecutive_failures >= \?, 'suspended',`).
		WithArgs(5, "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT status FROM subscriptions`).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failing"))

	st, err := repo.RecordChainFailure(context.Background(), "sub-1", 5)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionFailing, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRow(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	mock.ExpectExec(`DELETE FROM subscriptions`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListActiveScoped(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewSubscriptionsRepository(dbx)

	cols := []string{"id", "owner_id", "url", "secret", "events", "headers",
		"verify_ssl", "max_retries", "max_concurrency", "status",
		"consecutive_failures", "last_success_at", "last_failure_at",
		"created_at", "updated_at"}

	mock.ExpectQuery(`FROM subscriptions WHERE status IN \('active', 'failing'\) AND \(owner_id IS NULL OR owner_id = \?\)`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sub-1", 42, "https://example.com/hook", "s3cr3t-s3cr3t-s3",
				`["*"]`, `{}`, true, 3, 1, "active", 0, nil, nil,
				time.Now(), time.Now()))

	scope := int64(42)
	subs, err := repo.ListActive(context.Background(), &scope)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, model.StringList{"*"}, subs[0].Events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
