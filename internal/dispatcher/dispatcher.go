// Package dispatcher fans one event out to every matching subscription.
// Chains run concurrently across subscriptions under a global slot pool and a
// per-subscription cap; a failure on one subscription never affects delivery
// to another.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/scheduler"
)

// Matcher yields the deliverable subscriptions for an event.
type Matcher interface {
	Match(ctx context.Context, eventType model.EventType, scope *int64) ([]model.Subscription, error)
}

// ChainRunner drives one event -> subscription chain to a terminal state.
type ChainRunner interface {
	Deliver(ctx context.Context, sub model.Subscription, ev model.Event) scheduler.ChainResult
}

type Dispatcher struct {
	matcher Matcher
	runner  ChainRunner
	log     *zap.Logger
	slots   chan struct{} // global delivery-slot pool
	perSub  *keyedSemaphore
}

func New(matcher Matcher, runner ChainRunner, log *zap.Logger, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	return &Dispatcher{
		matcher: matcher,
		runner:  runner,
		log:     log,
		slots:   make(chan struct{}, maxConcurrent),
		perSub:  newKeyedSemaphore(),
	}
}

// Dispatch runs the event's delivery chains and blocks until all of them
// reach a terminal state (or ctx is cancelled). It returns the number of
// matched subscriptions.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.Event) int {
	subs, err := d.matcher.Match(ctx, ev.Type, ev.Scope)
	if err != nil {
		d.log.Error("subscription match failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type.String()),
			zap.Error(err),
		)
		return 0
	}
	if len(subs) == 0 {
		d.log.Debug("no matching subscriptions",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type.String()),
		)
		return 0
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub model.Subscription) {
			defer wg.Done()
			d.runChain(ctx, sub, ev)
		}(sub)
	}
	wg.Wait()

	return len(subs)
}

func (d *Dispatcher) runChain(ctx context.Context, sub model.Subscription, ev model.Event) {
	if ctx.Err() != nil {
		return
	}
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.slots }()

	// Different events to the same subscription run under its own cap
	// (default 1) so the receiver is not hammered concurrently.
	if !d.perSub.acquire(ctx, sub.ID, sub.MaxConcurrency) {
		return
	}
	defer d.perSub.release(sub.ID)

	res := d.runner.Deliver(ctx, sub, ev)
	d.log.Info("delivery chain finished",
		zap.String("subscription_id", sub.ID),
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Attempts),
	)
}

// keyedSemaphore bounds concurrency per subscription id. Entries are created
// on first use and dropped once no chain holds or waits on them.
type keyedSemaphore struct {
	mu      sync.Mutex
	entries map[string]*semEntry
}

type semEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedSemaphore() *keyedSemaphore {
	return &keyedSemaphore{entries: make(map[string]*semEntry)}
}

func (k *keyedSemaphore) acquire(ctx context.Context, key string, limit int) bool {
	if limit <= 0 {
		limit = 1
	}

	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &semEntry{ch: make(chan struct{}, limit)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		k.drop(key)
		return false
	}
}

func (k *keyedSemaphore) release(key string) {
	k.mu.Lock()
	e := k.entries[key]
	k.mu.Unlock()
	<-e.ch
	k.drop(key)
}

func (k *keyedSemaphore) drop(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
