package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

var _ model.TokenStore = (*Store)(nil)

// Store keeps the current token in memory and writes through to an optional
// durable persister. Memory is updated first so a Set is visible to every
// subsequent Get regardless of how the persister behaves.
type Store struct {
	mu        sync.RWMutex
	token     model.Token
	present   bool
	persister model.TokenPersister
}

// New creates a Store backed by persister. A nil persister keeps tokens in memory only.
func New(persister model.TokenPersister) *Store {
	return &Store{persister: persister}
}

// Load hydrates the in-memory token from the persister.
// A missing durable token is not an error.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	token, err := s.persister.Load(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}

	s.mu.Lock()
	s.token, s.present = token, true
	s.mu.Unlock()

	return nil
}

// Get returns the current token, if any.
func (s *Store) Get() (model.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, s.present
}

// Set replaces the current token.
func (s *Store) Set(ctx context.Context, token model.Token) error {
	s.mu.Lock()
	s.token, s.present = token, true
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Clear removes the current token.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token, s.present = model.Token{}, false
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete persisted token: %w", err)
	}
	return nil
}

// CompareAndSwap replaces the current token with next only if the store
// still holds credentials equal to old.
func (s *Store) CompareAndSwap(ctx context.Context, old, next model.Token) (bool, error) {
	s.mu.Lock()
	if !s.present || !s.token.SameCredentials(old) {
		s.mu.Unlock()
		return false, nil
	}
	s.token = next
	s.mu.Unlock()

	if s.persister == nil {
		return true, nil
	}
	if err := s.persister.Save(ctx, next); err != nil {
		return true, fmt.Errorf("failed to persist token: %w", err)
	}
	return true, nil
}

// CompareAndDelete clears the store only if it still holds credentials
// equal to old.
func (s *Store) CompareAndDelete(ctx context.Context, old model.Token) (bool, error) {
	s.mu.Lock()
	if !s.present || !s.token.SameCredentials(old) {
		s.mu.Unlock()
		return false, nil
	}
	s.token, s.present = model.Token{}, false
	s.mu.Unlock()

	if s.persister == nil {
		return true, nil
	}
	if err := s.persister.Delete(ctx); err != nil {
		return true, fmt.Errorf("failed to delete persisted token: %w", err)
	}
	return true, nil
}
