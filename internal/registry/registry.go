// Package registry stores and matches subscriber configuration. It owns
// validation of subscription config and the health transitions driven by
// delivery outcomes; the actual rows live behind SubscriptionsRepository.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/repository"
	"github.com/creatorhub/webhook-gateway/internal/util"
)

const (
	defaultMaxRetries     = 3
	defaultMaxConcurrency = 1
	minSecretLength       = 16
)

// ErrNotFound is returned for operations on unknown subscription ids.
var ErrNotFound = repository.ErrSubscriptionNotFound

// ValidationError reports invalid subscription config. It is surfaced
// synchronously to the CRUD caller and never reaches delivery.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SubscriptionInput is the caller-supplied config for create and update.
type SubscriptionInput struct {
	OwnerID        *int64
	URL            string
	Secret         string
	Events         []string
	Headers        map[string]string
	VerifySSL      *bool // nil = default true
	MaxRetries     *int  // nil = default 3
	MaxConcurrency *int  // nil = default 1
}

type Registry struct {
	repo             repository.SubscriptionsRepository
	failureThreshold int // consecutive failed chains before suspension
}

func New(repo repository.SubscriptionsRepository, failureThreshold int) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &Registry{repo: repo, failureThreshold: failureThreshold}
}

// Create validates the input and persists a new active subscription.
func (r *Registry) Create(ctx context.Context, in SubscriptionInput) (*model.Subscription, error) {
	sub, err := buildSubscription(in)
	if err != nil {
		return nil, err
	}
	sub.ID = util.NewULID()
	sub.Status = model.SubscriptionActive

	if err := r.repo.Insert(ctx, *sub); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return r.repo.GetByID(ctx, sub.ID)
}

// Update replaces the subscription's config. Health fields are untouched and
// historical delivery attempts are never revalidated.
func (r *Registry) Update(ctx context.Context, id string, in SubscriptionInput) (*model.Subscription, error) {
	sub, err := buildSubscription(in)
	if err != nil {
		return nil, err
	}
	sub.ID = id

	if err := r.repo.UpdateConfig(ctx, *sub); err != nil {
		return nil, err
	}
	return r.repo.GetByID(ctx, id)
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Subscription, error) {
	return r.repo.GetByID(ctx, id)
}

func (r *Registry) List(ctx context.Context, limit, offset int) ([]model.Subscription, error) {
	return r.repo.List(ctx, limit, offset)
}

// Delete removes the subscription. Pending retries observe the deletion on
// their next status recheck and no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

// Reactivate resets the failure counter and returns the subscription to
// active. It is the only way out of suspended.
func (r *Registry) Reactivate(ctx context.Context, id string) error {
	return r.repo.Reactivate(ctx, id)
}

// Match returns the active subscriptions whose filter and scope accept the
// given event type.
func (r *Registry) Match(ctx context.Context, eventType model.EventType, scope *int64) ([]model.Subscription, error) {
	subs, err := r.repo.ListActive(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	matched := subs[:0]
	for _, s := range subs {
		if s.Matches(eventType.String(), scope) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// Deliverable is the pre-retry liveness check. exists is false when the
// subscription has been deleted; active is false when it is suspended (or
// failing past its first chain) and must not receive the retry.
func (r *Registry) Deliverable(ctx context.Context, id string) (active, exists bool, err error) {
	st, err := r.repo.StatusOf(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return st == model.SubscriptionActive || st == model.SubscriptionFailing, true, nil
}

// RecordSuccess resets the subscription's consecutive-failure counter.
func (r *Registry) RecordSuccess(ctx context.Context, id string) error {
	return r.repo.RecordSuccess(ctx, id)
}

// RecordChainFailure counts one failed delivery chain and reports whether it
// tripped the suspension threshold.
func (r *Registry) RecordChainFailure(ctx context.Context, id string) (suspended bool, err error) {
	st, err := r.repo.RecordChainFailure(ctx, id, r.failureThreshold)
	if err != nil {
		return false, err
	}
	return st == model.SubscriptionSuspended, nil
}

func buildSubscription(in SubscriptionInput) (*model.Subscription, error) {
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}

	if len(in.Secret) < minSecretLength {
		return nil, &ValidationError{
			Field:  "secret",
			Reason: fmt.Sprintf("must be at least %d characters", minSecretLength),
		}
	}

	if len(in.Events) == 0 {
		return nil, &ValidationError{Field: "events", Reason: "filter must not be empty"}
	}
	events := make(model.StringList, 0, len(in.Events))
	for _, e := range in.Events {
		e = strings.ToLower(strings.TrimSpace(e))
		if !model.KnownEventType(e) {
			return nil, &ValidationError{Field: "events", Reason: "unknown event type " + e}
		}
		events = append(events, e)
	}

	for k := range in.Headers {
		if strings.EqualFold(k, "X-Signature") {
			return nil, &ValidationError{Field: "headers", Reason: "X-Signature is reserved"}
		}
	}

	sub := &model.Subscription{
		OwnerID:        in.OwnerID,
		URL:            u.String(),
		Secret:         in.Secret,
		Events:         events,
		Headers:        in.Headers,
		VerifySSL:      true,
		MaxRetries:     defaultMaxRetries,
		MaxConcurrency: defaultMaxConcurrency,
	}
	if in.VerifySSL != nil {
		sub.VerifySSL = *in.VerifySSL
	}
	if in.MaxRetries != nil && *in.MaxRetries >= 0 {
		sub.MaxRetries = *in.MaxRetries
	}
	if in.MaxConcurrency != nil && *in.MaxConcurrency > 0 {
		sub.MaxConcurrency = *in.MaxConcurrency
	}
	return sub, nil
}
