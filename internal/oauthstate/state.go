// Package oauthstate keeps the short-lived nonces that tie an OAuth callback
// back to the user who started the connect flow.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// TTL is how long a connect flow may take before its state expires.
const TTL = 10 * time.Minute

// ErrInvalidState is returned for unknown, expired or already used nonces.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// State is what the callback needs to finish a connect flow.
type State struct {
	UserID   string `json:"user_id"`
	TentID   string `json:"tent_id,omitempty"`
	Provider string `json:"provider"`
}

// Store saves states and hands each one back at most once.
type Store interface {
	Save(ctx context.Context, nonce string, st State, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (State, error)
}

// NewNonce returns a random 64-character hex nonce.
func NewNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
