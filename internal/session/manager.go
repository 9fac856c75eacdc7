package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

// LogoutReason says why a session ended.
type LogoutReason string

const (
	// ReasonRefreshRejected means the server refused the refresh credential.
	ReasonRefreshRejected LogoutReason = "refresh_rejected"
	// ReasonUser means the user signed out explicitly.
	ReasonUser LogoutReason = "user"
)

// LogoutHandler is notified when the session ends.
type LogoutHandler func(reason LogoutReason)

// OutcomeSource publishes refresh outcomes.
type OutcomeSource interface {
	Subscribe(fn func(model.Outcome)) (unsubscribe func())
}

// Manager ends the session when a refresh credential is rejected.
type Manager struct {
	store  model.TokenStore
	logger *logger.Logger

	mu       sync.Mutex
	handlers []LogoutHandler

	unsubscribe func()
}

// NewManager creates a Manager listening to source.
func NewManager(store model.TokenStore, source OutcomeSource, logger *logger.Logger) *Manager {
	m := &Manager{store: store, logger: logger}
	m.unsubscribe = source.Subscribe(m.handleOutcome)
	return m
}

// OnLogout registers h. Handlers run synchronously and must not block.
func (m *Manager) OnLogout(h LogoutHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Logout clears stored credentials and notifies handlers.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	m.notify(ReasonUser)
	return nil
}

// Close stops listening to refresh outcomes.
func (m *Manager) Close() {
	m.unsubscribe()
}

func (m *Manager) handleOutcome(o model.Outcome) {
	if o.Success() {
		return
	}
	if !errors.Is(o.Err, model.ErrRefreshRejected) {
		m.logger.Debug("refresh failed, no logout", "attempt_id", o.AttemptID, "reason", o.Reason())
		return
	}

	// the coordinator has cleared the store already
	m.logger.Info("session invalidated", "attempt_id", o.AttemptID)
	m.notify(ReasonRefreshRejected)
}

func (m *Manager) notify(reason LogoutReason) {
	m.mu.Lock()
	handlers := make([]LogoutHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}
