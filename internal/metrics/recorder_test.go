package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, kv ...attribute.KeyValue) int64 {
	t.Helper()

	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)

	want := attribute.NewSet(kv...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewRecorder(provider.Meter("expensekeeper-test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.RefreshCompleted(ctx, model.Outcome{AttemptID: 1}, 120*time.Millisecond)
	r.RefreshCompleted(ctx, model.Outcome{AttemptID: 2, Err: model.ErrRefreshRejected}, time.Second)
	for i := 0; i < 3; i++ {
		r.WaitCompleted(ctx, model.Outcome{AttemptID: 1})
	}
	r.WaitCompleted(ctx, model.Outcome{AttemptID: 2, Err: model.ErrRefreshTimeout})
	r.RequestRetried(ctx, "http", "refresh")
	r.RequestRetried(ctx, "grpc", "retry")

	got := collect(t, reader)

	assert.Equal(t, int64(1), sumFor(t, got[RefreshAttempts], attribute.String("reason", "success")))
	assert.Equal(t, int64(1), sumFor(t, got[RefreshAttempts], attribute.String("reason", "rejected")))
	assert.Equal(t, int64(3), sumFor(t, got[RefreshWaits], attribute.String("reason", "success")))
	assert.Equal(t, int64(1), sumFor(t, got[RefreshWaits], attribute.String("reason", "timeout")))
	assert.Equal(t, int64(1), sumFor(t, got[RequestRetries],
		attribute.String("transport", "http"), attribute.String("cause", "refresh")))
	assert.Equal(t, int64(1), sumFor(t, got[RequestRetries],
		attribute.String("transport", "grpc"), attribute.String("cause", "retry")))

	hist, ok := got[RefreshDuration].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestNewRecorderRejectsNilMeter(t *testing.T) {
	t.Parallel()

	_, err := NewRecorder(nil)
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestTotals(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewRecorder(provider.Meter("expensekeeper-test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.RequestRetried(ctx, "http", "refresh")
	r.RequestRetried(ctx, "grpc", "refresh")
	r.RefreshCompleted(ctx, model.Outcome{AttemptID: 1}, time.Millisecond)

	got, err := Totals(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[RequestRetries])
	assert.Equal(t, int64(1), got[RefreshAttempts])
	assert.NotContains(t, got, RefreshDuration)
}
