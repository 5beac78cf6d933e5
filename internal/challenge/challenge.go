// ABOUTME: Take-once cache interface for pending WebAuthn ceremony state
// ABOUTME: A stored entry can be consumed exactly once before its TTL expires

package challenge

import (
	"context"
	"errors"
)

// ErrNoChallenge indicates a ceremony key that was never stored, already
// consumed, or expired. Callers cannot tell these cases apart.
var ErrNoChallenge = errors.New("no pending challenge")

// Cache stores serialized ceremony state keyed by a per-attempt ID.
// Take removes the entry, so a verify response can only ever match one
// stored challenge.
type Cache interface {
	Put(ctx context.Context, key string, data []byte) error
	Take(ctx context.Context, key string) ([]byte, error)
	Close() error
}
