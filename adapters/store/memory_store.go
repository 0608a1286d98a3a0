package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/promox/core"
)

type expiring struct {
	value     string
	expiresAt time.Time
}

// MemoryStore keeps nonces and revoked sessions in process memory.
// Expired entries are swept on write.
type MemoryStore struct {
	nonces  map[string]expiring
	revoked map[string]time.Time
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces:  make(map[string]expiring),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// PutNonce stores nonce under binding for ttl
func (s *MemoryStore) PutNonce(ctx context.Context, binding, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.nonces[binding] = expiring{value: nonce, expiresAt: s.now().Add(ttl)}

	return nil
}

// TakeNonce returns and removes the nonce stored under binding
func (s *MemoryStore) TakeNonce(ctx context.Context, binding string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.nonces[binding]
	delete(s.nonces, binding)

	if !exists || !s.now().Before(entry.expiresAt) {
		return "", core.ErrNonceInvalidOrExpired
	}

	return entry.value, nil
}

// RevokeSession marks a session id as revoked for ttl
func (s *MemoryStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.revoked[sessionID] = s.now().Add(ttl)

	return nil
}

// IsSessionRevoked checks if a session id is revoked
func (s *MemoryStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.revoked[sessionID]
	if !exists {
		return false, nil
	}

	return s.now().Before(expiryTime), nil
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for k, v := range s.nonces {
		if !now.Before(v.expiresAt) {
			delete(s.nonces, k)
		}
	}
	for k, v := range s.revoked {
		if !now.Before(v) {
			delete(s.revoked, k)
		}
	}
}
