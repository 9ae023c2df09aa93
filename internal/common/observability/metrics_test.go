package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestObservability_RecordsTurns(t *testing.T) {
	reader := metric.NewManualReader()
	obs := NewWithReader(reader, "assistant-test")
	defer obs.Shutdown()

	ctx := context.Background()
	obs.RecordTurnProcessed(ctx, "success")
	obs.RecordTurnProcessed(ctx, "success")
	obs.RecordTurnDuration(ctx, 120*time.Millisecond, "success")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = m
	}

	counter, ok := names["turns.processed"]
	require.True(t, ok)
	sum, ok := counter.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	_, ok = names["turns.duration"]
	assert.True(t, ok)
}

func TestObservability_NilSafe(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordTurnProcessed(context.Background(), "error")
		obs.RecordTurnDuration(context.Background(), time.Second, "error")
		obs.Shutdown()
	})
	assert.NotPanics(t, func() {
		empty := &Observability{}
		empty.RecordTurnProcessed(context.Background(), "error")
	})
}
