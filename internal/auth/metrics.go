package auth

import (
	"context"
	"time"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

// Metrics receives refresh pipeline events.
type Metrics interface {
	RefreshCompleted(ctx context.Context, outcome model.Outcome, duration time.Duration)
	WaitCompleted(ctx context.Context, outcome model.Outcome)
	RequestRetried(ctx context.Context, transport string, cause string)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RefreshCompleted(context.Context, model.Outcome, time.Duration) {}
func (NopMetrics) WaitCompleted(context.Context, model.Outcome)                   {}
func (NopMetrics) RequestRetried(context.Context, string, string)                 {}
