package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorhub/webhook-gateway/internal/model"
	"github.com/creatorhub/webhook-gateway/internal/signer"
	"github.com/creatorhub/webhook-gateway/internal/transport"
)

type fakeRegistry struct {
	mu            sync.Mutex
	active        bool
	exists        bool
	successes     int
	chainFailures int
	suspendAfter  int // chainFailures count that flips suspended
}

func (f *fakeRegistry) Deliverable(context.Context, string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.exists, nil
}

func (f *fakeRegistry) RecordSuccess(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
	return nil
}

func (f *fakeRegistry) RecordChainFailure(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainFailures++
	return f.suspendAfter > 0 && f.chainFailures >= f.suspendAfter, nil
}

type memLedger struct {
	mu      sync.Mutex
	records []model.DeliveryAttempt
}

func (l *memLedger) Append(_ context.Context, a model.DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, a)
	return nil
}

func (l *memLedger) all() []model.DeliveryAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.DeliveryAttempt(nil), l.records...)
}

// scriptedTransport returns canned results in order, repeating the last one.
type scriptedTransport struct {
	mu      sync.Mutex
	results []transport.Result
	calls   int
}

func (s *scriptedTransport) Attempt(context.Context, model.Subscription, model.Envelope, []byte, string) transport.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]
}

func status(code int) transport.Result {
	return transport.Result{StatusCode: &code, Latency: time.Millisecond}
}

func newTestScheduler(reg Registry, led Ledger, tr Transport) *Scheduler {
	return New(reg, led, tr, zap.NewNop(), Opts{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
}

func testSub(maxRetries int) model.Subscription {
	return model.Subscription{
		ID:         "sub-1",
		URL:        "https://example.com/hook",
		Secret:     "s3cr3t-s3cr3t-s3",
		MaxRetries: maxRetries,
	}
}

func testEvent() model.Event {
	return model.Event{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Type:      model.PostPublished,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{"id":1}`),
	}
}

func TestRetryBoundOnPersistent500(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(500)}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainRetriesExhausted, res.Outcome)
	assert.Equal(t, 4, res.Attempts) // 1 initial + 3 retries
	assert.Equal(t, 4, tr.calls)
	assert.Equal(t, 1, reg.chainFailures)
	assert.Zero(t, reg.successes)

	recs := led.all()
	require.Len(t, recs, 4)
	for i, r := range recs {
		assert.Equal(t, i+1, r.AttemptNo)
		assert.False(t, r.Success)
		require.NotNil(t, r.StatusCode)
		assert.Equal(t, 500, *r.StatusCode)
	}
}

func TestPermanentFailureShortCircuits(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(404)}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainPermanentFailure, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 1, reg.chainFailures)
	require.Len(t, led.all(), 1)
}

func TestEventualSuccessResetsHealth(t *testing.T) {
	// Scenario: 503, 503, 503, then 200 on the fourth try.
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{
		status(503), status(503), status(503), status(200),
	}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainSuccess, res.Outcome)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 1, reg.successes)
	assert.Zero(t, reg.chainFailures)

	recs := led.all()
	require.Len(t, recs, 4)
	assert.False(t, recs[0].Success)
	assert.False(t, recs[1].Success)
	assert.False(t, recs[2].Success)
	assert.True(t, recs[3].Success)
}

func TestNetworkErrorIsTransient(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{
		{Err: errors.New("dial tcp: connection refused")},
		status(200),
	}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainSuccess, res.Outcome)
	assert.Equal(t, 2, res.Attempts)

	recs := led.all()
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].StatusCode)
	require.NotNil(t, recs[0].Error)
	assert.Contains(t, *recs[0].Error, "connection refused")
}

func TestRetrySkippedWhenSuspendedMidFlight(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(503)}}

	s := newTestScheduler(reg, led, tr)

	// The first attempt fires without a recheck; flip to suspended so the
	// scheduled retry observes it.
	reg.mu.Lock()
	reg.active = false
	reg.mu.Unlock()

	res := s.Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainSkipped, res.Outcome)
	assert.Equal(t, 1, tr.calls)

	recs := led.all()
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Skipped)
	assert.True(t, recs[1].Skipped)
	require.NotNil(t, recs[1].Error)
	assert.Zero(t, reg.chainFailures) // a skip is not a failure
}

func TestRetryDroppedWhenDeletedMidFlight(t *testing.T) {
	reg := &fakeRegistry{active: false, exists: false}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(503)}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(3), testEvent())

	assert.Equal(t, ChainSkipped, res.Outcome)
	assert.Equal(t, 1, tr.calls)
	// No ledger row is written after the deletion.
	require.Len(t, led.all(), 1)
	assert.False(t, led.all()[0].Skipped)
}

func TestAbortOnContextCancel(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(503)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestScheduler(reg, led, tr).Deliver(ctx, testSub(3), testEvent())

	assert.Equal(t, ChainAborted, res.Outcome)
	assert.LessOrEqual(t, tr.calls, 1)
}

func TestSuspensionReportedAtThreshold(t *testing.T) {
	reg := &fakeRegistry{active: true, exists: true, suspendAfter: 1}
	led := &memLedger{}
	tr := &scriptedTransport{results: []transport.Result{status(404)}}

	res := newTestScheduler(reg, led, tr).Deliver(context.Background(), testSub(0), testEvent())

	assert.Equal(t, ChainPermanentFailure, res.Outcome)
	assert.Equal(t, 1, reg.chainFailures)
}

func TestDeliverAgainstRealEndpoint(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	var sigs []string
	codes := []int{503, 503, 200}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, body)
		sigs = append(sigs, r.Header.Get(transport.HeaderSignature))
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		w.WriteHeader(code)
	}))
	defer srv.Close()

	reg := &fakeRegistry{active: true, exists: true}
	led := &memLedger{}
	sub := testSub(3)
	sub.URL = srv.URL

	res := newTestScheduler(reg, led, transport.New(transport.Opts{})).
		Deliver(context.Background(), sub, testEvent())

	assert.Equal(t, ChainSuccess, res.Outcome)
	assert.Equal(t, 3, res.Attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 3)
	// Same canonical bytes and signature on every attempt of a chain.
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, sigs[0], sigs[2])
	assert.True(t, signer.Verify(bodies[0], sub.Secret, sigs[0]))
}
