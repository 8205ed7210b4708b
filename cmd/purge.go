package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/creatorhub/webhook-gateway/internal/config"
	"github.com/creatorhub/webhook-gateway/internal/db"
	"github.com/creatorhub/webhook-gateway/internal/repository"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete delivery attempts older than the retention window",
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

		window := cfg.Retention.Window
		if window <= 0 {
			window = 720 * time.Hour
		}
		cutoff := time.Now().Add(-window)

		attempts := repository.NewAttemptsRepository(sqlDB)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		n, err := attempts.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("purge attempts: %w", err)
		}

		fmt.Printf(">> Purged %d delivery attempts older than %s\n", n, cutoff.Format(time.RFC3339))
		return nil
	},
}
