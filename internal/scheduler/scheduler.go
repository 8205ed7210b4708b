// Package scheduler runs one event's delivery chain against one subscription:
// attempt, classify, back off, retry, and record every try in the ledger.
// Retries are timer-driven within the chain rather than discovered by
// rescanning failed rows, so backoff timing is exact and per attempt.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/metrics"
	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/signer"
	"github.com/creatorhub/webhook-gateway/internal/transport"
	"github.com/creatorhub/webhook-gateway/internal/util"
)

// Registry is the subscription health surface the scheduler needs.
type Registry interface {
	Deliverable(ctx context.Context, id string) (active, exists bool, err error)
	RecordSuccess(ctx context.Context, id string) error
	RecordChainFailure(ctx context.Context, id string) (suspended bool, err error)
}

// Ledger is the append-only attempt log.
type Ledger interface {
	Append(ctx context.Context, a model.DeliveryAttempt) error
}

// Transport performs a single bounded HTTP attempt.
type Transport interface {
	Attempt(ctx context.Context, sub model.Subscription, env model.Envelope, body []byte, signature string) transport.Result
}

// ChainOutcome is the terminal state of one event -> subscription chain.
type ChainOutcome string

const (
	ChainSuccess          ChainOutcome = "success"
	ChainPermanentFailure ChainOutcome = "permanent_failure"
	ChainRetriesExhausted ChainOutcome = "retries_exhausted"
	ChainSkipped          ChainOutcome = "skipped"
	ChainAborted          ChainOutcome = "aborted" // shutdown mid-chain
)

// ChainResult reports how a chain ended and how many attempts it made.
type ChainResult struct {
	Outcome  ChainOutcome
	Attempts int
}

type Opts struct {
	BaseDelay time.Duration // default 30s
	MaxDelay  time.Duration // default 10m
}

type Scheduler struct {
	registry  Registry
	ledger    Ledger
	transport Transport
	log       *zap.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
}

func New(reg Registry, ledger Ledger, tr Transport, log *zap.Logger, opts Opts) *Scheduler {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 30 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Minute
	}
	return &Scheduler{
		registry:  reg,
		ledger:    ledger,
		transport: tr,
		log:       log,
		baseDelay: opts.BaseDelay,
		maxDelay:  opts.MaxDelay,
	}
}

// Deliver runs the full chain to a terminal state. Retries are strictly
// sequential; the subscription's live status is rechecked before each retry
// fires, so a deletion or suspension in the meantime turns the retry into a
// no-op instead of a failure.
func (s *Scheduler) Deliver(ctx context.Context, sub model.Subscription, ev model.Event) ChainResult {
	env := model.NewEnvelope(ev)

	body, err := signer.CanonicalBody(env)
	if err != nil {
		s.log.Error("envelope encode failed",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", env.Event),
			zap.Error(err),
		)
		return ChainResult{Outcome: ChainAborted}
	}
	sig, err := signer.Sign(body, sub.Secret)
	if err != nil {
		s.log.Error("envelope signing failed",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", env.Event),
			zap.Error(err),
		)
		return ChainResult{Outcome: ChainAborted}
	}

	maxAttempts := sub.MaxRetries + 1
	attemptNo := 0
	var last transport.Result

	for attemptNo < maxAttempts {
		attemptNo++

		if attemptNo > 1 {
			delay := retryDelay(last, attemptNo-1, s.baseDelay, s.maxDelay)
			metrics.RetriesTotal.Inc()
			if !sleepCtx(ctx, delay) {
				return ChainResult{Outcome: ChainAborted, Attempts: attemptNo - 1}
			}

			active, exists, err := s.registry.Deliverable(ctx, sub.ID)
			if err != nil {
				s.log.Error("status recheck failed",
					zap.String("subscription_id", sub.ID),
					zap.Error(err),
				)
				return ChainResult{Outcome: ChainAborted, Attempts: attemptNo - 1}
			}
			if !exists {
				// Deleted mid-flight: nothing more is written for it.
				s.log.Info("retry dropped, subscription deleted",
					zap.String("subscription_id", sub.ID),
					zap.String("event_id", ev.ID),
				)
				metrics.DeliveriesTotal.WithLabelValues(string(ChainSkipped), env.Event).Inc()
				return ChainResult{Outcome: ChainSkipped, Attempts: attemptNo - 1}
			}
			if !active {
				s.appendSkipped(ctx, sub, ev, env, body, attemptNo)
				metrics.DeliveriesTotal.WithLabelValues(string(ChainSkipped), env.Event).Inc()
				return ChainResult{Outcome: ChainSkipped, Attempts: attemptNo - 1}
			}
		}

		res := s.transport.Attempt(ctx, sub, env, body, sig)
		last = res
		metrics.DeliveryDuration.Observe(res.Latency.Seconds())

		outcome := Classify(res)
		s.appendAttempt(ctx, sub, ev, env, body, attemptNo, res, outcome)

		switch outcome {
		case OutcomeSuccess:
			if err := s.registry.RecordSuccess(ctx, sub.ID); err != nil {
				s.log.Error("record success failed",
					zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			metrics.DeliveriesTotal.WithLabelValues(string(ChainSuccess), env.Event).Inc()
			return ChainResult{Outcome: ChainSuccess, Attempts: attemptNo}

		case OutcomePermanent:
			s.finishFailedChain(ctx, sub, env)
			metrics.DeliveriesTotal.WithLabelValues(string(ChainPermanentFailure), env.Event).Inc()
			return ChainResult{Outcome: ChainPermanentFailure, Attempts: attemptNo}
		}

		if ctx.Err() != nil {
			// In-flight attempt completed but no further retries after
			// shutdown.
			return ChainResult{Outcome: ChainAborted, Attempts: attemptNo}
		}
	}

	s.finishFailedChain(ctx, sub, env)
	metrics.DeliveriesTotal.WithLabelValues(string(ChainRetriesExhausted), env.Event).Inc()
	return ChainResult{Outcome: ChainRetriesExhausted, Attempts: attemptNo}
}

func (s *Scheduler) finishFailedChain(ctx context.Context, sub model.Subscription, env model.Envelope) {
	suspended, err := s.registry.RecordChainFailure(ctx, sub.ID)
	if err != nil {
		s.log.Error("record chain failure failed",
			zap.String("subscription_id", sub.ID), zap.Error(err))
		return
	}
	if suspended {
		metrics.SuspensionsTotal.Inc()
		s.log.Warn("subscription suspended after sustained failure",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", env.Event),
		)
	}
}

func (s *Scheduler) appendAttempt(ctx context.Context, sub model.Subscription, ev model.Event, env model.Envelope, body []byte, attemptNo int, res transport.Result, outcome Outcome) {
	rec := model.DeliveryAttempt{
		AttemptID:       util.NewULID(),
		SubscriptionID:  sub.ID,
		EventID:         ev.ID,
		EventType:       env.Event,
		AttemptNo:       attemptNo,
		RequestBody:     body,
		StatusCode:      res.StatusCode,
		ResponseSnippet: res.Snippet,
		Success:         outcome == OutcomeSuccess,
		LatencyMs:       res.Latency.Milliseconds(),
	}
	if res.Err != nil {
		msg := res.Err.Error()
		rec.Error = &msg
	} else if outcome != OutcomeSuccess && res.StatusCode != nil {
		msg := fmt.Sprintf("HTTP %d", *res.StatusCode)
		rec.Error = &msg
	}

	if err := s.ledger.Append(ctx, rec); err != nil {
		s.log.Error("ledger append failed",
			zap.String("subscription_id", sub.ID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) appendSkipped(ctx context.Context, sub model.Subscription, ev model.Event, env model.Envelope, body []byte, attemptNo int) {
	msg := "subscription no longer active"
	rec := model.DeliveryAttempt{
		AttemptID:      util.NewULID(),
		SubscriptionID: sub.ID,
		EventID:        ev.ID,
		EventType:      env.Event,
		AttemptNo:      attemptNo,
		RequestBody:    body,
		Skipped:        true,
		Error:          &msg,
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		s.log.Error("ledger append failed",
			zap.String("subscription_id", sub.ID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
