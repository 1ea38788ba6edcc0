package observability

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobcoach/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testMetrics(t *testing.T, settings config.CustomMetricsConfig) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := newMetrics(mp.Meter("test"), settings)
	require.NoError(t, err)
	return m, reader
}

// counterTotal sums every data point of the named Int64 sum.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestTrackAIOperationWithTokens(t *testing.T) {
	m, reader := testMetrics(t, AllMetrics())
	ctx := context.Background()

	err := m.TrackAIOperationWithTokens(ctx, "cheatsheet", func(context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}}
	})
	require.NoError(t, err)

	boom := stderrors.New("boom")
	err = m.TrackAIOperationWithTokens(ctx, "answer", func(context.Context) *AIOperationResult {
		return &AIOperationResult{Error: boom}
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(2), counterTotal(t, reader, "jobcoach_ai_requests_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "jobcoach_ai_errors_total"))
}

func TestSessionMetricsRespectSwitches(t *testing.T) {
	settings := AllMetrics()
	settings.Sessions.TrackLayoutDrops = false
	m, reader := testMetrics(t, settings)
	ctx := context.Background()

	m.RecordSessionOperation(ctx, "open", true)
	m.RecordSessionOperation(ctx, "save", false)
	m.RecordLayoutRepairs(ctx, map[string]int{"unknown": 2})
	m.RecordHydrationErrors(ctx, 3)

	assert.Equal(t, int64(2), counterTotal(t, reader, "jobcoach_session_operations_total"))
	assert.Equal(t, int64(0), counterTotal(t, reader, "jobcoach_layout_repairs_total"))
	assert.Equal(t, int64(3), counterTotal(t, reader, "jobcoach_widget_hydration_errors_total"))
}

func TestZeroMetricsAreNoOps(t *testing.T) {
	var m Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordSessionOperation(ctx, "open", true)
		m.RecordLayoutRepairs(ctx, map[string]int{"duplicate": 1})
		m.RecordPayloadSize(ctx, "session", 10)
		m.RecordRegistryReload(ctx, true)
		m.RecordRateLimitHit(ctx, "ip")
	})

	called := false
	err := m.TrackAIOperationWithTokens(ctx, "outline", func(context.Context) *AIOperationResult {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	var om *ObservabilityManager
	assert.NotNil(t, om.GetMetrics())
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(config.ObservabilityConfig{ServiceName: "jobcoach"}, "test")
	require.NoError(t, err)
	assert.NotNil(t, om.GetMetrics())
	assert.Nil(t, om.MetricsHandler())
	assert.NoError(t, om.Shutdown(context.Background()))
}

func TestManagerServesPrometheusOnAPI(t *testing.T) {
	om, err := NewObservabilityManager(config.ObservabilityConfig{
		Enabled:    true,
		Metrics:    config.MetricsConfig{Enabled: true},
		Prometheus: config.PrometheusConfig{Enabled: true},
	}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })

	handler := om.MetricsHandler()
	require.NotNil(t, handler, "an empty port mounts the endpoint on the API server")

	om.GetMetrics().RecordRateLimitHit(context.Background(), "ip")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "jobcoach_rate_limit_hits")
}

func TestResolve(t *testing.T) {
	s := Resolve(config.ObservabilityConfig{
		SampleRate: 0.5,
		Tracing:    config.TracingConfig{Enabled: true},
		Prometheus: config.PrometheusConfig{Enabled: true, Port: "9464"},
		OTLP:       config.OTLPConfig{Enabled: false, Endpoint: "http://collector:4318"},
	}, "1.2.3")

	assert.Equal(t, "jobcoach", s.ServiceName)
	assert.Equal(t, "1.2.3", s.ServiceVersion)
	assert.NotEmpty(t, s.ServiceInstance)
	assert.Equal(t, 0.5, s.SampleRate)
	assert.Equal(t, "/metrics", s.Prometheus.Endpoint)
	assert.Equal(t, "9464", s.Prometheus.Port)
	assert.Nil(t, s.OTLP)
	assert.Positive(t, s.CollectionInterval)

	s = Resolve(config.ObservabilityConfig{
		ServiceVersion: "pinned",
		SampleRate:     0.5,
		Tracing:        config.TracingConfig{SampleRate: 0.1},
		OTLP:           config.OTLPConfig{Enabled: true, Endpoint: "http://collector:4318"},
	}, "1.2.3")
	assert.Equal(t, "pinned", s.ServiceVersion)
	assert.Equal(t, 0.1, s.SampleRate)
	require.NotNil(t, s.OTLP)
	assert.Equal(t, "http://collector:4318", s.OTLP.Endpoint)
}
