package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/repository"
)

// listAttemptsHandler serves the ledger read path from MySQL: per-attempt
// rows filtered by subscription, event type, and time range.
func listAttemptsHandler(attempts repository.AttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := pageParams(c)

		q := repository.AttemptQuery{
			SubscriptionID: strings.TrimSpace(c.QueryParam("subscription_id")),
			Limit:          limit,
			Offset:         offset,
		}

		if raw := strings.TrimSpace(c.QueryParam("event_type")); raw != "" {
			if !model.KnownEventType(raw) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown event type"})
			}
			q.EventType = raw
		}
		if v := c.QueryParam("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from timestamp"})
			}
			q.From = t
		}
		if v := c.QueryParam("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to timestamp"})
			}
			q.To = t
		}

		rows, err := attempts.Query(c.Request().Context(), q)
		if err != nil {
			log.Errorf("attempt query failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

// attemptReportHandler serves aggregated per-subscription delivery stats from
// ClickHouse.
func attemptReportHandler(chRepo repository.CHAttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		since := time.Now().Add(-24 * time.Hour)
		if v := c.QueryParam("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid since timestamp"})
			}
			since = t
		}

		limit := 100
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := chRepo.ReportBySubscription(
			c.Request().Context(),
			strings.TrimSpace(c.QueryParam("subscription_id")),
			since,
			limit,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse report failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"since":   since,
			"count":   len(rows),
			"results": rows,
		})
	}
}
