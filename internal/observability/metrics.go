package observability

import (
	"context"
	"fmt"
	"time"

	"jobcoach/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all custom metrics for jobcoach. A zero Metrics records
// nothing.
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Session metrics
	SessionOperations metric.Int64Counter
	LayoutRepairs     metric.Int64Counter
	HydrationErrors   metric.Int64Counter
	PayloadSize       metric.Int64Histogram

	// Infrastructure metrics
	RegistryReloads metric.Int64Counter
	CertReloadCount metric.Int64Counter
	CertExpiryTime  metric.Float64Gauge
	RateLimitHits   metric.Int64Counter

	settings config.CustomMetricsConfig
}

// AllMetrics returns custom metric switches with everything enabled.
func AllMetrics() config.CustomMetricsConfig {
	return config.CustomMetricsConfig{
		AIOperations:   config.AIOperationsMetricsConfig{Enabled: true, TrackDuration: true, TrackTokenUsage: true},
		Sessions:       config.SessionMetricsConfig{Enabled: true, TrackLayoutDrops: true, TrackPayloadSize: true},
		Infrastructure: config.InfrastructureMetricsConfig{Enabled: true, TrackRateLimits: true},
	}
}

// newMetrics creates all custom metrics on meter.
func newMetrics(meter metric.Meter, settings config.CustomMetricsConfig) (*Metrics, error) {
	m := &Metrics{settings: settings}

	if err := m.createAIMetrics(meter); err != nil {
		return nil, err
	}
	if err := m.createSessionMetrics(meter); err != nil {
		return nil, err
	}
	if err := m.createInfrastructureMetrics(meter); err != nil {
		return nil, err
	}
	return m, nil
}

// createAIMetrics creates AI-related metrics
func (m *Metrics) createAIMetrics(meter metric.Meter) error {
	var err error

	m.AIProcessingTime, err = meter.Float64Histogram(
		"jobcoach_ai_processing_duration_seconds",
		metric.WithDescription("Time spent processing AI requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	m.AIRequestCount, err = meter.Int64Counter(
		"jobcoach_ai_requests_total",
		metric.WithDescription("Total number of AI requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	m.AIErrorCount, err = meter.Int64Counter(
		"jobcoach_ai_errors_total",
		metric.WithDescription("Total number of AI request errors"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	m.AITokenUsage, err = meter.Int64Histogram(
		"jobcoach_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	return nil
}

// createSessionMetrics creates co-pilot session metrics
func (m *Metrics) createSessionMetrics(meter metric.Meter) error {
	var err error

	m.SessionOperations, err = meter.Int64Counter(
		"jobcoach_session_operations_total",
		metric.WithDescription("Co-pilot session operations (open, save, widget edits)"),
	)
	if err != nil {
		return fmt.Errorf("failed to create session operations metric: %w", err)
	}

	m.LayoutRepairs, err = meter.Int64Counter(
		"jobcoach_layout_repairs_total",
		metric.WithDescription("Persisted layout entries dropped or repaired on load"),
	)
	if err != nil {
		return fmt.Errorf("failed to create layout repairs metric: %w", err)
	}

	m.HydrationErrors, err = meter.Int64Counter(
		"jobcoach_widget_hydration_errors_total",
		metric.WithDescription("Persisted widget entries ignored during hydration"),
	)
	if err != nil {
		return fmt.Errorf("failed to create hydration errors metric: %w", err)
	}

	m.PayloadSize, err = meter.Int64Histogram(
		"jobcoach_session_payload_bytes",
		metric.WithDescription("Size of serialized session payloads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payload size metric: %w", err)
	}

	return nil
}

// createInfrastructureMetrics creates registry, certificate and rate limit metrics
func (m *Metrics) createInfrastructureMetrics(meter metric.Meter) error {
	var err error

	m.RegistryReloads, err = meter.Int64Counter(
		"jobcoach_registry_reloads_total",
		metric.WithDescription("Total number of widget registry override reloads"),
	)
	if err != nil {
		return fmt.Errorf("failed to create registry reload metric: %w", err)
	}

	m.CertReloadCount, err = meter.Int64Counter(
		"jobcoach_cert_reloads_total",
		metric.WithDescription("Total number of certificate reloads"),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate reload count metric: %w", err)
	}

	m.CertExpiryTime, err = meter.Float64Gauge(
		"jobcoach_cert_expiry_seconds",
		metric.WithDescription("Seconds until certificate expiry"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate expiry time metric: %w", err)
	}

	m.RateLimitHits, err = meter.Int64Counter(
		"jobcoach_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return nil
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// TrackAIOperationWithTokens instruments an AI operation with tracing, metrics, and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult) error {
	if m == nil || m.AIProcessingTime == nil {
		// Metrics not initialized, just run the function
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	tracer := otel.Tracer("jobcoach.ai")
	ctx, span := tracer.Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	if m.settings.AIOperations.Enabled {
		if m.settings.AIOperations.TrackDuration {
			m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
		}
		m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		if err != nil {
			m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if result != nil && result.TokenUsage != nil && m.settings.AIOperations.TrackTokenUsage {
			m.recordTokenMetrics(ctx, result.TokenUsage, attrs)
		}
		span.SetAttributes(attrs...)
	}

	if result != nil && result.TokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}

	return err
}

// recordTokenMetrics records individual token usage metrics
func (m *Metrics) recordTokenMetrics(ctx context.Context, tokenUsage *TokenUsage, attrs []attribute.KeyValue) {
	for _, tt := range []struct {
		tokenType string
		value     int64
	}{
		{"input", tokenUsage.InputTokens},
		{"output", tokenUsage.OutputTokens},
		{"total", tokenUsage.TotalTokens},
	} {
		tokenAttrs := append(append([]attribute.KeyValue{}, attrs...), attribute.String("token_type", tt.tokenType))
		m.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(tokenAttrs...))
	}
}

// RecordSessionOperation counts one co-pilot session operation.
func (m *Metrics) RecordSessionOperation(ctx context.Context, operation string, success bool, attributes ...attribute.KeyValue) {
	if m == nil || m.SessionOperations == nil || !m.settings.Sessions.Enabled {
		return
	}
	attrs := append([]attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	}, attributes...)
	m.SessionOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLayoutRepairs adds per-reason counts of repaired layout entries.
// Zero counts are skipped.
func (m *Metrics) RecordLayoutRepairs(ctx context.Context, counts map[string]int) {
	if m == nil || m.LayoutRepairs == nil || !m.settings.Sessions.Enabled || !m.settings.Sessions.TrackLayoutDrops {
		return
	}
	for reason, n := range counts {
		if n > 0 {
			m.LayoutRepairs.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
		}
	}
}

// RecordHydrationErrors counts persisted widget entries that were ignored.
func (m *Metrics) RecordHydrationErrors(ctx context.Context, n int) {
	if m == nil || m.HydrationErrors == nil || !m.settings.Sessions.Enabled || n <= 0 {
		return
	}
	m.HydrationErrors.Add(ctx, int64(n))
}

// RecordPayloadSize records the size in bytes of a serialized session.
func (m *Metrics) RecordPayloadSize(ctx context.Context, kind string, size int) {
	if m == nil || m.PayloadSize == nil || !m.settings.Sessions.Enabled || !m.settings.Sessions.TrackPayloadSize {
		return
	}
	m.PayloadSize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRegistryReload counts a widget registry overrides reload.
func (m *Metrics) RecordRegistryReload(ctx context.Context, success bool) {
	if m == nil || m.RegistryReloads == nil || !m.settings.Infrastructure.Enabled {
		return
	}
	m.RegistryReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordCertReload counts a certificate reload and records time to expiry.
func (m *Metrics) RecordCertReload(ctx context.Context, success bool, notAfter time.Time) {
	if m == nil || m.CertReloadCount == nil || !m.settings.Infrastructure.Enabled {
		return
	}
	m.CertReloadCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success && !notAfter.IsZero() {
		m.CertExpiryTime.Record(ctx, time.Until(notAfter).Seconds())
	}
}

// RecordRateLimitHit counts a rejected request.
func (m *Metrics) RecordRateLimitHit(ctx context.Context, limiter string) {
	if m == nil || m.RateLimitHits == nil || !m.settings.Infrastructure.TrackRateLimits {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", limiter)))
}
