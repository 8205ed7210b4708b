package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/creatorhub/webhook-gateway/internal/config"
	"github.com/creatorhub/webhook-gateway/internal/db"
	"github.com/creatorhub/webhook-gateway/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo subscriptions...")

		if err := seedSubscriptions(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

// seedSubscriptions inserts deterministic demo subscriptions (idempotent,
// keyed on fixed ids).
func seedSubscriptions(dbx *sqlx.DB) error {
	one := int64(1)
	two := int64(2)

	subs := []model.Subscription{
		{
			ID:      "01HXDEMO0000000000000000A1",
			URL:     "https://hooks.acme.test/creatorhub",
			Secret:  "acme-demo-secret-0000000000000001",
			Events:  model.StringList{"*"},
			Headers: model.StringMap{"X-Tenant": "acme"},
			Status:  model.SubscriptionActive,
		},
		{
			ID:      "01HXDEMO0000000000000000A2",
			OwnerID: &one,
			URL:     "https://creator-one.test/webhooks",
			Secret:  "creator-one-secret-000000000001",
			Events:  model.StringList{"post.published", "comment.posted"},
			Status:  model.SubscriptionActive,
		},
		{
			ID:      "01HXDEMO0000000000000000A3",
			OwnerID: &two,
			URL:     "http://localhost:9099/hooks",
			Secret:  "local-dev-secret-00000000000001",
			Events:  model.StringList{"payout.created"},
			Status:  model.SubscriptionSuspended,
		},
	}

	const q = `
INSERT INTO subscriptions
    (id, owner_id, url, secret, events, headers, verify_ssl, max_retries,
     max_concurrency, status, consecutive_failures, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, 1, 3, 1, ?, 0, ?, ?)
ON DUPLICATE KEY UPDATE
    url        = VALUES(url),
    secret     = VALUES(secret),
    events     = VALUES(events),
    headers    = VALUES(headers),
    status     = VALUES(status),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, s := range subs {
		events, err := s.Events.Value()
		if err != nil {
			return err
		}
		headers, err := s.Headers.Value()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(q, s.ID, s.OwnerID, s.URL, s.Secret, events, headers, s.Status.String(), now, now); err != nil {
			return fmt.Errorf("insert subscription %q: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscriptions: %w", err)
	}
	return nil
}
