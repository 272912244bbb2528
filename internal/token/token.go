// Package token implements the single-use check-in token store. A token
// is an opaque random value bound server-side to a (user, event) key; at
// most one live token exists per key, and putting a new one atomically
// replaces — and therefore revokes — the previous one.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when no record matches the presented token.
var ErrNotFound = errors.New("token not found")

// ErrAlreadyUsed is returned by Consume when the record was consumed
// before, by this call's loser in a race or by an earlier presentation.
var ErrAlreadyUsed = errors.New("token already used")

// Record is a stored check-in token for one (user, event) pair.
type Record struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// Store is the keyed token capability. Implementations must make Put
// atomic per (user, event) key so a reissue fully replaces the prior
// record with no window where both tokens resolve.
type Store interface {
	// Put stores rec under its (UserID, EventID) key, replacing any
	// previous record for that key.
	Put(ctx context.Context, rec Record) error
	// GetByToken resolves the record holding the given opaque value,
	// or ErrNotFound.
	GetByToken(ctx context.Context, token string) (*Record, error)
	// Consume atomically flags the record as used. Exactly one of any
	// number of concurrent Consume calls for the same record succeeds;
	// the rest get ErrAlreadyUsed. The record is retained until expiry
	// so a replay is reported as already-used rather than unknown.
	Consume(ctx context.Context, rec Record) error
	// Delete removes the record for a key, if any.
	Delete(ctx context.Context, userID, eventID string) error
}

// New generates an opaque token value: 24 bytes from crypto/rand,
// base64url without padding (≥128 bits of entropy).
func New() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func key(userID, eventID string) string {
	return userID + ":" + eventID
}

// MemoryStore keeps tokens in process memory. Tokens do not survive a
// restart; expiry is enforced lazily by the consumer.
type MemoryStore struct {
	mu      sync.Mutex
	byKey   map[string]Record
	byToken map[string]string // token value -> key
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:   make(map[string]Record),
		byToken: make(map[string]string),
	}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.UserID, rec.EventID)
	if old, ok := s.byKey[k]; ok {
		delete(s.byToken, old.Token)
	}
	s.byKey[k] = rec
	s.byToken[rec.Token] = k
	return nil
}

func (s *MemoryStore) GetByToken(ctx context.Context, tok string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byToken[tok]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.byKey[k]
	return &rec, nil
}

func (s *MemoryStore) Consume(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.UserID, rec.EventID)
	stored, ok := s.byKey[k]
	if !ok || stored.Token != rec.Token {
		return ErrNotFound
	}
	if stored.Used {
		return ErrAlreadyUsed
	}
	stored.Used = true
	s.byKey[k] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, eventID)
	if rec, ok := s.byKey[k]; ok {
		delete(s.byToken, rec.Token)
		delete(s.byKey, k)
	}
	return nil
}
