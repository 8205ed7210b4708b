package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

func TestCanonicalBodyDeterministic(t *testing.T) {
	// Same logical payload, different key order and whitespace.
	a := model.Envelope{
		Event:     "post.published",
		Timestamp: "2026-01-02T15:04:05Z",
		Data:      json.RawMessage(`{"title": "Hello",   "id": 1}`),
	}
	b := model.Envelope{
		Event:     "post.published",
		Timestamp: "2026-01-02T15:04:05Z",
		Data:      json.RawMessage(`{"id":1,"title":"Hello"}`),
	}

	ba, err := CanonicalBody(a)
	require.NoError(t, err)
	bb, err := CanonicalBody(b)
	require.NoError(t, err)

	assert.Equal(t, string(ba), string(bb))
	assert.Equal(t, `{"event":"post.published","timestamp":"2026-01-02T15:04:05Z","data":{"id":1,"title":"Hello"}}`, string(ba))
}

func TestCanonicalBodyNilPayload(t *testing.T) {
	body, err := CanonicalBody(model.Envelope{Event: "post.deleted", Timestamp: "2026-01-02T15:04:05Z"})
	require.NoError(t, err)
	assert.Equal(t, `{"event":"post.deleted","timestamp":"2026-01-02T15:04:05Z","data":null}`, string(body))
}

func TestSignMatchesManualHMAC(t *testing.T) {
	env := model.NewEnvelope(model.Event{
		Type:      model.PostPublished,
		Timestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Payload:   json.RawMessage(`{"id":1,"title":"Hello"}`),
	})

	body, err := CanonicalBody(env)
	require.NoError(t, err)

	sig, err := Sign(body, "s3cr3t")
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("s3cr3t"))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestSignEmptySecret(t *testing.T) {
	_, err := Sign([]byte(`{}`), "")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"payout.created","timestamp":"2026-01-02T15:04:05Z","data":{"amount":100}}`)

	sig, err := Sign(body, "hunter22hunter22")
	require.NoError(t, err)

	assert.True(t, Verify(body, "hunter22hunter22", sig))
	assert.False(t, Verify(body, "wrong-secret-wrong", sig))
	assert.False(t, Verify(append(body, ' '), "hunter22hunter22", sig))
}
