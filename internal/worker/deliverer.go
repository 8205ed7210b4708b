package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/kafka"
	"github.com/creatorhub/webhook-gateway/internal/model"
)

// EventDispatcher fans one event out to its matching subscriptions and
// blocks until every chain reaches a terminal state.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev model.Event) int
}

// Consumer is the Kafka surface the worker needs.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Deliverer:
// - fetches trigger events from Kafka,
// - hands each to the Dispatcher for fan-out,
// - commits after the event's chains finish (at-least-once).
type Deliverer struct {
	Consumer   Consumer
	Dispatcher EventDispatcher
	Log        *zap.Logger

	Workers int // number of goroutines processing events
}

func NewDeliverer(consumer Consumer, disp EventDispatcher, log *zap.Logger) *Deliverer {
	return &Deliverer{
		Consumer:   consumer,
		Dispatcher: disp,
		Log:        log,
		Workers:    16,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Deliverer) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.Log.Warn("kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				select {
				case msgCh <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Processors
	done := make(chan struct{})
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-msgCh:
					if !ok {
						return
					}
					w.processOne(ctx, m)
				}
			}
		}()
	}

	for i := 0; i < w.Workers; i++ {
		<-done
	}
	return nil
}

func (w *Deliverer) processOne(ctx context.Context, m kafka.Message) {
	var ev model.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" || ev.Type == "" {
		// Poison message: commit and skip.
		if err != nil {
			w.Log.Warn("bad event json", zap.Error(err))
		} else {
			w.Log.Warn("event missing id or type")
		}
		_ = w.Consumer.Commit(ctx, m)
		return
	}

	matched := w.Dispatcher.Dispatch(ctx, ev)

	if ctx.Err() != nil {
		// Shutdown interrupted the chains; leave the message uncommitted so
		// the next run redelivers it (at-least-once).
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		w.Log.Warn("kafka commit failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	w.Log.Debug("event processed",
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type.String()),
		zap.Int("matched", matched),
	)
}
