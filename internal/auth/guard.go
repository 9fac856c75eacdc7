package auth

import (
	"context"
	"time"

	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

// Action is what a transport should do with an authorization failure.
type Action int

const (
	// ActionPropagate returns the failure to the caller unchanged.
	ActionPropagate Action = iota
	// ActionRetry re-dispatches once with the token the store already holds.
	ActionRetry
	// ActionRefresh waits for a refresh, then re-dispatches once.
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionRefresh:
		return "refresh"
	default:
		return "propagate"
	}
}

// RefreshRequester is the part of Coordinator the guard depends on.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, sent string) model.Outcome
}

// Guard holds the authorization policy shared by the HTTP and gRPC transports.
type Guard struct {
	store       model.TokenStore
	tracker     *Tracker
	coordinator RefreshRequester
	window      time.Duration
	metrics     Metrics
	logger      *logger.Logger
}

// NewGuard creates a Guard. window is the lead time within which a token
// counts as expiring soon.
func NewGuard(
	store model.TokenStore,
	tracker *Tracker,
	coordinator RefreshRequester,
	window time.Duration,
	metrics Metrics,
	logger *logger.Logger,
) *Guard {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Guard{
		store:       store,
		tracker:     tracker,
		coordinator: coordinator,
		window:      window,
		metrics:     metrics,
		logger:      logger,
	}
}

// Credential returns the token to attach to an outbound request.
func (g *Guard) Credential() (model.Token, bool) {
	token, ok := g.store.Get()
	if !ok || token.AccessToken == "" {
		return model.Token{}, false
	}
	return token, true
}

// Assess decides how to handle an authorization failure for a request that
// was sent with sent (or without a token when attached is false).
// For ActionRetry the returned token is the one to retry with.
func (g *Guard) Assess(sent model.Token, attached bool) (Action, model.Token) {
	if !attached {
		return ActionPropagate, model.Token{}
	}

	current, ok := g.Credential()
	if !ok {
		// cleared by logout or a rejected refresh while the request was in flight
		return ActionPropagate, model.Token{}
	}
	if current.AccessToken != sent.AccessToken {
		return ActionRetry, current
	}

	if g.tracker.IsExpired() || g.tracker.IsExpiringSoon(g.window) {
		return ActionRefresh, model.Token{}
	}

	return ActionPropagate, model.Token{}
}

// Refresh blocks until the coordinator reports an outcome for a caller that
// was rejected with sent.
func (g *Guard) Refresh(ctx context.Context, sent model.Token) (model.Token, bool) {
	outcome := g.coordinator.RequestRefresh(ctx, sent.AccessToken)
	if !outcome.Success() {
		g.logger.Warn("request not retried, refresh unavailable",
			"attempt_id", outcome.AttemptID,
			"reason", outcome.Reason())
		return model.Token{}, false
	}
	return outcome.Token, true
}

// Retried records a retried dispatch.
func (g *Guard) Retried(ctx context.Context, transport string, action Action) {
	g.metrics.RequestRetried(ctx, transport, action.String())
}
