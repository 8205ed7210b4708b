package http

import (
	"errors"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/registry"
)

type subscriptionReq struct {
	OwnerID        *int64            `json:"owner_id"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	VerifySSL      *bool             `json:"verify_ssl"`
	MaxRetries     *int              `json:"max_retries"`
	MaxConcurrency *int              `json:"max_concurrency"`
}

func (r subscriptionReq) input() registry.SubscriptionInput {
	return registry.SubscriptionInput{
		OwnerID:        r.OwnerID,
		URL:            r.URL,
		Secret:         r.Secret,
		Events:         r.Events,
		Headers:        r.Headers,
		VerifySSL:      r.VerifySSL,
		MaxRetries:     r.MaxRetries,
		MaxConcurrency: r.MaxConcurrency,
	}
}

func createSubscriptionHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req subscriptionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		sub, err := reg.Create(c.Request().Context(), req.input())
		if err != nil {
			var ve *registry.ValidationError
			if errors.As(err, &ve) {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{
					"error":  "validation failed",
					"field":  ve.Field,
					"reason": ve.Reason,
				})
			}
			log.Error("subscription create failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, sub)
	}
}

func listSubscriptionsHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := pageParams(c)

		subs, err := reg.List(c.Request().Context(), limit, offset)
		if err != nil {
			log.Error("subscription list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(subs),
			"results": subs,
		})
	}
}

func getSubscriptionHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		sub, err := reg.Get(c.Request().Context(), c.Param("id"))
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscription not found"})
		}
		if err != nil {
			log.Error("subscription get failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func updateSubscriptionHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req subscriptionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		sub, err := reg.Update(c.Request().Context(), c.Param("id"), req.input())
		if err != nil {
			var ve *registry.ValidationError
			if errors.As(err, &ve) {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{
					"error":  "validation failed",
					"field":  ve.Field,
					"reason": ve.Reason,
				})
			}
			if errors.Is(err, registry.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "subscription not found"})
			}
			log.Error("subscription update failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, sub)
	}
}

func deleteSubscriptionHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := reg.Delete(c.Request().Context(), c.Param("id"))
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscription not found"})
		}
		if err != nil {
			log.Error("subscription delete failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reactivateSubscriptionHandler(reg *registry.Registry, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := reg.Reactivate(c.Request().Context(), c.Param("id"))
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscription not found"})
		}
		if err != nil {
			log.Error("subscription reactivate failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"reactivated": true, "id": c.Param("id")})
	}
}

func pageParams(c echo.Context) (limit, offset int) {
	limit = 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
