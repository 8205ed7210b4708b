package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/config"
	"github.com/creatorhub/webhook-gateway/internal/db"
	"github.com/creatorhub/webhook-gateway/internal/dispatcher"
	"github.com/creatorhub/webhook-gateway/internal/kafka"
	"github.com/creatorhub/webhook-gateway/internal/logger"
	"github.com/creatorhub/webhook-gateway/internal/metrics"
	"github.com/creatorhub/webhook-gateway/internal/registry"
	"github.com/creatorhub/webhook-gateway/internal/repository"
	"github.com/creatorhub/webhook-gateway/internal/scheduler"
	"github.com/creatorhub/webhook-gateway/internal/transport"
	"github.com/creatorhub/webhook-gateway/internal/worker"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run the webhook delivery worker",
	RunE:  runDeliverer,
}

func runDeliverer(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) repositories
	subsRepo := repository.NewSubscriptionsRepository(dbx)
	attemptsRepo := repository.NewAttemptsRepository(dbx)

	// 4) delivery pipeline: registry -> transport -> scheduler -> dispatcher
	reg := registry.New(subsRepo, cfg.Delivery.FailureThreshold)

	tr := transport.New(transport.Opts{
		ConnectTimeout: cfg.Delivery.ConnectTimeout,
		RequestTimeout: cfg.Delivery.RequestTimeout,
		MaxSnippetSize: cfg.Delivery.MaxSnippetSize,
	})

	sched := scheduler.New(reg, attemptsRepo, tr, log, scheduler.Opts{
		BaseDelay: cfg.Delivery.BackoffBase,
		MaxDelay:  cfg.Delivery.BackoffCap,
	})

	disp := dispatcher.New(reg, sched, log, cfg.Delivery.MaxConcurrent)

	// 5) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "whgw-deliverer"
	}

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewDeliverer(consumer, disp, log)
	if cfg.Delivery.WorkerCount > 0 {
		w.Workers = cfg.Delivery.WorkerCount
	}

	// 6) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("deliverer started",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", groupID),
		zap.Int("workers", w.Workers),
		zap.Int("max_concurrent", cfg.Delivery.MaxConcurrent),
	)

	return w.Run(ctx)
}
