package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/ecoagris/portal"

	sessionVerifyDurationName = "ecoagris.session.verify.duration"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gate metrics
	GateDecisions         metric.Int64Counter
	SessionVerifyDuration metric.Float64Histogram

	// Login metrics
	LoginAttempts    metric.Int64Counter
	RateLimitedTotal metric.Int64Counter

	// Admin metrics
	AdminActionsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// RecordGateDecision counts one gate outcome.
func (m *Metrics) RecordGateDecision(ctx context.Context, outcome string) {
	m.GateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSessionVerify records how long a session verification took.
func (m *Metrics) RecordSessionVerify(ctx context.Context, started time.Time, ok bool) {
	m.SessionVerifyDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000.0,
		metric.WithAttributes(attribute.Bool("ok", ok)))
}

// RecordLoginAttempt counts one login attempt by result kind.
func (m *Metrics) RecordLoginAttempt(ctx context.Context, result string) {
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRateLimited counts one rejected request.
func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	m.RateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// RecordAdminAction counts one admin user-management action.
func (m *Metrics) RecordAdminAction(ctx context.Context, action string) {
	m.AdminActionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.GateDecisions, _ = meter.Int64Counter(
		"ecoagris.gate.decisions",
		metric.WithDescription("Total number of access gate decisions by outcome"),
		metric.WithUnit("{decision}"),
	)

	m.SessionVerifyDuration, _ = meter.Float64Histogram(
		sessionVerifyDurationName,
		metric.WithDescription("Duration of revocation-aware session cookie verification"),
		metric.WithUnit("ms"),
	)

	m.LoginAttempts, _ = meter.Int64Counter(
		"ecoagris.login.attempts",
		metric.WithDescription("Total number of admin login attempts by result"),
		metric.WithUnit("{attempt}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"ecoagris.ratelimit.rejected",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	m.AdminActionsTotal, _ = meter.Int64Counter(
		"ecoagris.admin.actions",
		metric.WithDescription("Total number of admin user-management actions"),
		metric.WithUnit("{action}"),
	)

	return m
}
