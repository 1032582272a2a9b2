package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Session is one client's session for the duration of a request.
type Session struct {
	Token string
	State State

	persisted bool // exists in the store
	changed   bool // token or state written during this request
	destroyed bool
}

// Destroyed reports whether the session was ended during this request.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

// Manager loads and persists sessions. The store is keyed by a hash of the
// client token so the store never holds a usable token.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to a session each time it is saved.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func storeID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Load returns the session for token, or a new anonymous session when token
// is empty, unknown or expired. New sessions are not stored until Save.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	if token != "" {
		state, err := m.store.Get(ctx, storeID(token))
		switch {
		case err == nil:
			if state.Validate() == nil {
				return &Session{Token: token, State: *state, persisted: true}, nil
			}
			_ = m.store.Destroy(ctx, storeID(token))
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	fresh, err := newToken()
	if err != nil {
		return nil, err
	}
	return &Session{Token: fresh, State: State{CreatedAt: m.now().UTC()}}, nil
}

// Save validates and stores s, refreshing its TTL.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if err := s.State.Validate(); err != nil {
		return err
	}
	if err := m.store.Set(ctx, storeID(s.Token), &s.State, m.ttl); err != nil {
		return err
	}
	s.persisted = true
	s.changed = true
	s.destroyed = false
	return nil
}

// Rotate moves s to a new token and saves it. The old token stops working.
func (m *Manager) Rotate(ctx context.Context, s *Session) error {
	fresh, err := newToken()
	if err != nil {
		return err
	}
	if s.persisted {
		if err := m.store.Destroy(ctx, storeID(s.Token)); err != nil {
			return err
		}
	}
	s.Token = fresh
	s.persisted = false
	return m.Save(ctx, s)
}

// Destroy removes s from the store and clears its state.
func (m *Manager) Destroy(ctx context.Context, s *Session) error {
	if s.persisted {
		if err := m.store.Destroy(ctx, storeID(s.Token)); err != nil {
			return err
		}
	}
	s.State.Reset()
	s.persisted = false
	s.changed = true
	s.destroyed = true
	return nil
}

// EnsureCSRFToken returns the session's CSRF token, creating and saving one
// if needed.
func (m *Manager) EnsureCSRFToken(ctx context.Context, s *Session) (string, error) {
	if s.State.CSRFToken != "" && s.persisted {
		return s.State.CSRFToken, nil
	}
	if s.State.CSRFToken == "" {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		s.State.CSRFToken = token
	}
	if err := m.Save(ctx, s); err != nil {
		return "", err
	}
	return s.State.CSRFToken, nil
}
