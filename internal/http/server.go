package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/config"
	"github.com/creatorhub/webhook-gateway/internal/emitter"
	"github.com/creatorhub/webhook-gateway/internal/http/middleware"
	"github.com/creatorhub/webhook-gateway/internal/metrics"
	"github.com/creatorhub/webhook-gateway/internal/registry"
	"github.com/creatorhub/webhook-gateway/internal/repository"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, pub emitter.Publisher, log *zap.Logger) *Server {
	// repos (MySQL)
	subsRepo := repository.NewSubscriptionsRepository(mysqlDB)
	attemptsRepo := repository.NewAttemptsRepository(mysqlDB)

	// repos (ClickHouse)
	chAttemptsRepo := repository.NewCHAttemptsRepository(clickhouseDB)

	// services
	reg := registry.New(subsRepo, cfg.Delivery.FailureThreshold)
	em := emitter.New(pub, log)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/subscriptions", createSubscriptionHandler(reg, log))
	v1.GET("/subscriptions", listSubscriptionsHandler(reg, log))
	v1.GET("/subscriptions/:id", getSubscriptionHandler(reg, log))
	v1.PUT("/subscriptions/:id", updateSubscriptionHandler(reg, log))
	v1.DELETE("/subscriptions/:id", deleteSubscriptionHandler(reg, log))
	v1.POST("/subscriptions/:id/reactivate", reactivateSubscriptionHandler(reg, log))

	v1.POST("/events", triggerEventHandler(em))
	v1.GET("/events/catalog", eventCatalogHandler())

	v1.GET("/attempts", listAttemptsHandler(attemptsRepo))
	v1.GET("/reports/attempts", attemptReportHandler(chAttemptsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
