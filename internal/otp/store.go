// Package otp provides storage for outstanding one-time verification codes.
// A store holds at most one code per identity; issuing a new code for an
// identity overwrites the previous one. Expiry is checked by the caller at
// verification time, not by the store.
package otp

import (
	"context"
	"sync"
	"time"
)

// Code is an outstanding one-time password for a single identity.
type Code struct {
	Value    int       `json:"value"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store keeps the outstanding code per identity.
type Store interface {
	// Put stores code for identity, overwriting any outstanding code.
	Put(ctx context.Context, identity string, code Code) error
	// Get returns the outstanding code for identity, if any.
	Get(ctx context.Context, identity string) (Code, bool, error)
	// Delete removes the outstanding code for identity and reports whether
	// one existed.
	Delete(ctx context.Context, identity string) (bool, error)
}

// MemoryStore is the default in-process Store. Entries for identities that
// never verify are kept until overwritten or deleted; there is no sweeper.
type MemoryStore struct {
	mu    sync.RWMutex
	codes map[string]Code
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes: make(map[string]Code),
	}
}

// Put stores code for identity, overwriting any outstanding code
func (s *MemoryStore) Put(_ context.Context, identity string, code Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[identity] = code
	return nil
}

// Get returns the outstanding code for identity, if any
func (s *MemoryStore) Get(_ context.Context, identity string) (Code, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.codes[identity]
	return code, ok, nil
}

// Delete removes the outstanding code for identity
func (s *MemoryStore) Delete(_ context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[identity]
	delete(s.codes, identity)
	return ok, nil
}
