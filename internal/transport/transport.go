// Package transport performs a single bounded HTTP delivery attempt.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

const (
	userAgent = "creatorhub-webhooks/1.0 (Webhook)"

	HeaderEventType      = "X-Event-Type"
	HeaderEventTimestamp = "X-Event-Timestamp"
	HeaderSignature      = "X-Signature"
)

// Result is the outcome of one attempt. StatusCode is nil and Err non-nil on
// network-level failure (DNS, connect refused, timeout). RetryAfter carries a
// numeric Retry-After response header when the subscriber sent one.
type Result struct {
	StatusCode *int
	Snippet    string
	Latency    time.Duration
	RetryAfter time.Duration
	Err        error
}

// OK reports whether the attempt was acknowledged (HTTP 2xx).
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode != nil &&
		*r.StatusCode >= 200 && *r.StatusCode < 300
}

type Opts struct {
	ConnectTimeout time.Duration // default 10s
	RequestTimeout time.Duration // default 30s
	MaxSnippetSize int           // default 512 bytes
}

// Transport holds two pre-built clients: one verifying TLS certificates and
// one not, selected per subscription by its verify_ssl flag.
type Transport struct {
	verified   *http.Client
	unverified *http.Client
	maxSnippet int
}

func New(opts Opts) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxSnippetSize <= 0 {
		opts.MaxSnippetSize = 512
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	base := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConnsPerHost: 8,
	}
	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Transport{
		verified:   &http.Client{Transport: base, Timeout: opts.RequestTimeout},
		unverified: &http.Client{Transport: insecure, Timeout: opts.RequestTimeout},
		maxSnippet: opts.MaxSnippetSize,
	}
}

// Attempt POSTs the signed body once. Custom subscription headers are merged
// after the protocol headers; the signature header cannot be overridden.
func (t *Transport) Attempt(ctx context.Context, sub model.Subscription, env model.Envelope, body []byte, signature string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEventType, env.Event)
	req.Header.Set(HeaderEventTimestamp, env.Timestamp)
	for k, v := range sub.Headers {
		if http.CanonicalHeaderKey(k) == HeaderSignature {
			continue
		}
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderSignature, signature)

	client := t.verified
	if !sub.VerifySSL {
		client = t.unverified
	}

	start := time.Now()
	res, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Latency: elapsed, Err: err}
	}
	defer res.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(res.Body, int64(t.maxSnippet)))
	_, _ = io.Copy(io.Discard, res.Body) // drain for connection reuse

	code := res.StatusCode
	return Result{
		StatusCode: &code,
		Snippet:    string(snippet),
		Latency:    elapsed,
		RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
	}
}

// parseRetryAfter handles the delay-seconds form only; the HTTP-date form is
// ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
