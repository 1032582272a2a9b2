package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists session state keyed by an opaque id.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Set(ctx context.Context, id string, state *State, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}
