package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

// DefaultWaitTimeout bounds how long a caller waits for a pending refresh.
const DefaultWaitTimeout = 30 * time.Second

// Attempt describes a single refresh operation.
type Attempt struct {
	ID        uint64
	StartedAt time.Time
	// Waiters counts callers that joined the attempt, including the one that started it.
	Waiters int
}

type attempt struct {
	Attempt
	done    chan struct{}
	outcome model.Outcome
}

type subscriber struct {
	id uint64
	fn func(model.Outcome)
}

// CoordinatorConfig contains refresh timing parameters.
type CoordinatorConfig struct {
	// WaitTimeout bounds a caller's wait. The attempt itself is not cancelled.
	WaitTimeout time.Duration
	// CallTimeout bounds the network refresh call. Zero means no extra bound.
	CallTimeout time.Duration
}

// Coordinator guarantees at most one refresh network call at a time and fans
// its outcome out to every caller that asked for a refresh while it ran.
type Coordinator struct {
	store     model.TokenStore
	refresher model.Refresher
	cfg       CoordinatorConfig
	metrics   Metrics
	logger    *logger.Logger

	mu          sync.Mutex
	seq         uint64
	pending     *attempt
	subSeq      uint64
	subscribers []subscriber
}

// NewCoordinator creates a Coordinator. A nil metrics disables instrumentation.
func NewCoordinator(
	store model.TokenStore,
	refresher model.Refresher,
	cfg CoordinatorConfig,
	metrics Metrics,
	logger *logger.Logger,
) *Coordinator {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Coordinator{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// RequestRefresh joins the pending refresh attempt or starts a new one, and
// blocks until its outcome, the wait timeout or ctx cancellation.
// sent is the access token the caller was rejected with. When no attempt is
// pending and the store already holds a different access token, that token
// is returned without a network call. An empty sent always refreshes.
func (c *Coordinator) RequestRefresh(ctx context.Context, sent string) model.Outcome {
	a, settled, ok := c.join(ctx, sent)
	if ok {
		c.metrics.WaitCompleted(ctx, settled)
		return settled
	}

	timer := time.NewTimer(c.cfg.WaitTimeout)
	defer timer.Stop()

	var outcome model.Outcome
	select {
	case <-a.done:
		outcome = a.outcome
	case <-timer.C:
		outcome = model.Outcome{
			AttemptID: a.ID,
			Err:       fmt.Errorf("%w: attempt %d pending for %s", model.ErrRefreshTimeout, a.ID, c.cfg.WaitTimeout),
		}
	case <-ctx.Done():
		outcome = model.Outcome{
			AttemptID: a.ID,
			Err:       fmt.Errorf("%w: %w", model.ErrRefreshTimeout, ctx.Err()),
		}
	}

	c.metrics.WaitCompleted(ctx, outcome)
	return outcome
}

// Pending returns the attempt currently in flight, if any.
func (c *Coordinator) Pending() (Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Attempt{}, false
	}
	return c.pending.Attempt, true
}

// Subscribe registers fn to receive every attempt's outcome exactly once.
// Listeners run on the refresh goroutine before waiters are released and
// must not block.
func (c *Coordinator) Subscribe(fn func(model.Outcome)) (unsubscribe func()) {
	c.mu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subscribers {
			if s.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

// join returns the attempt to wait on, or a settled outcome when an earlier
// attempt already replaced the token the caller was rejected with.
func (c *Coordinator) join(ctx context.Context, sent string) (*attempt, model.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Waiters++
		return c.pending, model.Outcome{}, false
	}

	if sent != "" {
		if current, ok := c.store.Get(); ok && current.AccessToken != "" && current.AccessToken != sent {
			return nil, model.Outcome{AttemptID: c.seq, Token: current}, true
		}
	}

	c.seq++
	a := &attempt{
		Attempt: Attempt{ID: c.seq, StartedAt: time.Now(), Waiters: 1},
		done:    make(chan struct{}),
	}
	c.pending = a

	go c.run(context.WithoutCancel(ctx), a)

	return a, model.Outcome{}, false
}

func (c *Coordinator) run(ctx context.Context, a *attempt) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	c.logger.Debug("token refresh started", "attempt_id", a.ID)

	outcome := c.refresh(ctx, a.ID)
	c.metrics.RefreshCompleted(ctx, outcome, time.Since(a.StartedAt))

	if outcome.Success() {
		c.logger.Info("token refresh succeeded",
			"attempt_id", a.ID,
			"duration_ms", time.Since(a.StartedAt).Milliseconds())
	} else {
		c.logger.Warn("token refresh failed",
			"attempt_id", a.ID,
			"reason", outcome.Reason(),
			"error", outcome.Err.Error())
	}

	c.mu.Lock()
	a.outcome = outcome
	if c.pending == a {
		c.pending = nil
	}
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(outcome)
	}

	close(a.done)
}

func (c *Coordinator) refresh(ctx context.Context, id uint64) model.Outcome {
	current, ok := c.store.Get()
	if !ok || current.RefreshToken == "" {
		if ok {
			if _, err := c.store.CompareAndDelete(ctx, current); err != nil {
				c.logger.Error("failed to clear token without refresh credential", "attempt_id", id, "error", err)
			}
		}
		return model.Outcome{
			AttemptID: id,
			Err:       fmt.Errorf("%w: no refresh credential", model.ErrRefreshRejected),
		}
	}

	token, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		outcome := model.Outcome{AttemptID: id, Err: err}
		if outcome.Reason() == "unknown" {
			outcome.Err = fmt.Errorf("%w: %w", model.ErrRefreshNetwork, err)
		}
		if errors.Is(err, model.ErrRefreshRejected) {
			cleared, clearErr := c.store.CompareAndDelete(ctx, current)
			if clearErr != nil {
				c.logger.Error("failed to clear rejected token", "attempt_id", id, "error", clearErr)
			}
			if !cleared {
				return c.superseded(id)
			}
		}
		return outcome
	}

	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}
	swapped, err := c.store.CompareAndSwap(ctx, current, token)
	if err != nil {
		c.logger.Error("failed to persist refreshed token", "attempt_id", id, "error", err)
	}
	if !swapped {
		return c.superseded(id)
	}

	return model.Outcome{AttemptID: id, Token: token}
}

// superseded builds the outcome of an attempt whose starting token was
// replaced or cleared while the call was in flight. Its own result is dropped.
func (c *Coordinator) superseded(id uint64) model.Outcome {
	if latest, ok := c.store.Get(); ok && latest.AccessToken != "" {
		c.logger.Info("token changed during refresh, result dropped", "attempt_id", id)
		return model.Outcome{AttemptID: id, Token: latest}
	}

	c.logger.Info("session ended during refresh, result dropped", "attempt_id", id)
	return model.Outcome{
		AttemptID: id,
		Err:       fmt.Errorf("%w: attempt %d", model.ErrSessionEnded, id),
	}
}
