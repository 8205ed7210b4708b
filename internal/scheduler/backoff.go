package scheduler

import (
	"net/http"
	"time"

	"github.com/creatorhub/webhook-gateway/internal/transport"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeSuccess: HTTP 2xx, chain terminates.
	OutcomeSuccess Outcome = iota
	// OutcomeTransient: network error, timeout, any 5xx, or 429. Eligible
	// for retry within the subscription's budget.
	OutcomeTransient
	// OutcomePermanent: any other 4xx. Terminal immediately, no retry.
	OutcomePermanent
)

// Classify maps a transport result onto the retry taxonomy.
func Classify(res transport.Result) Outcome {
	if res.Err != nil || res.StatusCode == nil {
		return OutcomeTransient
	}

	code := *res.StatusCode
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusTooManyRequests:
		return OutcomeTransient
	case code >= 400 && code < 500:
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}

// backoffDelay returns base * 2^(attemptNo-1) capped at max, where attemptNo
// is the 1-based number of the attempt that just failed.
func backoffDelay(attemptNo int, base, max time.Duration) time.Duration {
	if attemptNo < 1 {
		attemptNo = 1
	}

	d := base
	for i := 1; i < attemptNo; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// retryDelay picks the wait before the next attempt. A numeric Retry-After
// from the subscriber takes precedence over exponential backoff, still capped
// at max.
func retryDelay(res transport.Result, attemptNo int, base, max time.Duration) time.Duration {
	if res.RetryAfter > 0 {
		if res.RetryAfter > max {
			return max
		}
		return res.RetryAfter
	}
	return backoffDelay(attemptNo, base, max)
}
