// Package emitter is the producer-facing trigger API. Triggering is
// fire-and-forget: a producer's business transaction must never fail because
// a webhook endpoint is unreachable, so Trigger only enqueues and logs.
package emitter

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/metrics"
	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/util"
)

// Publisher enqueues one serialized event for the delivery worker.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Emitter struct {
	pub Publisher
	log *zap.Logger
	now func() time.Time
}

func New(pub Publisher, log *zap.Logger) *Emitter {
	return &Emitter{pub: pub, log: log, now: time.Now}
}

// Trigger enqueues one event occurrence for fan-out. It never returns an
// error: unknown event types and publish failures are logged and counted,
// nothing more.
func (e *Emitter) Trigger(ctx context.Context, eventType string, payload json.RawMessage, scope *int64) {
	t, err := model.ParseEventType(eventType)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(eventType, "rejected").Inc()
		e.log.Warn("trigger rejected", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	ev := model.Event{
		ID:        util.NewULID(),
		Type:      t,
		Timestamp: e.now().UTC(),
		Payload:   payload,
		Scope:     scope,
	}

	b, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(t.String(), "dropped").Inc()
		e.log.Error("event marshal failed", zap.String("event_type", t.String()), zap.Error(err))
		return
	}

	if err := e.pub.Publish(ctx, []byte(ev.ID), b); err != nil {
		metrics.EventsTotal.WithLabelValues(t.String(), "dropped").Inc()
		e.log.Error("event publish failed",
			zap.String("event_type", t.String()),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return
	}

	metrics.EventsTotal.WithLabelValues(t.String(), "enqueued").Inc()
	e.log.Debug("event enqueued",
		zap.String("event_type", t.String()),
		zap.String("event_id", ev.ID),
	)
}
