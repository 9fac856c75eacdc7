package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dtroode/expensekeeper-client/internal/auth"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

// Instrument names.
const (
	RefreshAttempts = "expensekeeper_token_refresh_attempts_total"
	RefreshDuration = "expensekeeper_token_refresh_duration_seconds"
	RefreshWaits    = "expensekeeper_token_refresh_waits_total"
	RequestRetries  = "expensekeeper_request_retries_total"
)

var ErrNilMeter = errors.New("nil meter")

var _ auth.Metrics = (*Recorder)(nil)

// Recorder reports refresh pipeline events as OpenTelemetry instruments.
type Recorder struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
	waits    metric.Int64Counter
	retries  metric.Int64Counter
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	attempts, err := meter.Int64Counter(RefreshAttempts,
		metric.WithDescription("Completed token refresh network calls by outcome."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", RefreshAttempts, err)
	}

	duration, err := meter.Float64Histogram(RefreshDuration,
		metric.WithDescription("Duration of token refresh attempts."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", RefreshDuration, err)
	}

	waits, err := meter.Int64Counter(RefreshWaits,
		metric.WithDescription("Callers released from waiting on a refresh, by outcome."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", RefreshWaits, err)
	}

	retries, err := meter.Int64Counter(RequestRetries,
		metric.WithDescription("Requests re-dispatched after an authorization failure."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", RequestRetries, err)
	}

	return &Recorder{attempts: attempts, duration: duration, waits: waits, retries: retries}, nil
}

func (r *Recorder) RefreshCompleted(ctx context.Context, outcome model.Outcome, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("reason", outcome.Reason()))
	r.attempts.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), attrs)
}

func (r *Recorder) WaitCompleted(ctx context.Context, outcome model.Outcome) {
	r.waits.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", outcome.Reason())))
}

func (r *Recorder) RequestRetried(ctx context.Context, transport string, cause string) {
	r.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("cause", cause),
	))
}
