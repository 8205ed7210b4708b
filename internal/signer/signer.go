// Package signer produces the canonical envelope bytes and the HMAC
// signature transmitted with every delivery. The signature is computed over
// the exact bytes sent on the wire, so encoding must be deterministic:
// logically identical envelopes always serialize to identical bytes.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/creatorhub/webhook-gateway/internal/model"
)

// SignaturePrefix precedes the hex HMAC in the X-Signature header value.
const SignaturePrefix = "sha256="

// CanonicalBody serializes the envelope deterministically. The payload is
// round-tripped through encoding/json so object keys come out sorted and
// number formatting is normalized, regardless of how the producer formatted
// the original bytes.
func CanonicalBody(env model.Envelope) ([]byte, error) {
	data, err := canonicalize(env.Data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	env.Data = data

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return body, nil
}

// Sign computes the HMAC-SHA256 of body keyed by secret and returns it in
// header form: sha256=<hex>.
func Sign(body []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over body and compares it in constant time
// against the transmitted header value. Provided for receiver-side checks and
// tests; the sender never calls it.
func Verify(body []byte, secret, signature string) bool {
	want, err := Sign(body, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

func canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	// encoding/json marshals map keys in sorted order, which together with
	// normalized number formatting makes the output deterministic.
	return json.Marshal(v)
}
