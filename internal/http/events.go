package http

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/creatorhub/webhook-gateway/internal/emitter"
	"github.com/creatorhub/webhook-gateway/internal/model"
)

type triggerReq struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Scope   *int64          `json:"scope"`
}

// triggerEventHandler accepts an event occurrence from a producer and hands
// it to the emitter. The response is 202 regardless of downstream delivery:
// triggering is fire-and-forget past this point.
func triggerEventHandler(em *emitter.Emitter) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req triggerReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		t, err := model.ParseEventType(req.Type)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown event type"})
		}
		if len(req.Payload) == 0 {
			req.Payload = json.RawMessage("{}")
		}

		em.Trigger(c.Request().Context(), t.String(), req.Payload, req.Scope)

		return c.JSON(http.StatusAccepted, map[string]any{
			"accepted": true,
			"type":     t.String(),
		})
	}
}

func eventCatalogHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, model.Catalog())
	}
}
