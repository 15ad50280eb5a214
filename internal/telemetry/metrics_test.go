package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	m := initMetrics()
	ctx := context.Background()

	m.RecordGateDecision(ctx, "pass_through")
	m.RecordGateDecision(ctx, "redirect_no_cookie")
	m.RecordLoginAttempt(ctx, "success")
	m.RecordSessionVerify(ctx, time.Now(), true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]metricdata.Aggregation{}
	for _, mm := range rm.ScopeMetrics[0].Metrics {
		names[mm.Name] = mm.Data
	}

	gate, ok := names["ecoagris.gate.decisions"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, gate.DataPoints, 2)

	_, ok = names["ecoagris.login.attempts"].(metricdata.Sum[int64])
	require.True(t, ok)

	_, ok = names["ecoagris.session.verify.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
}
