package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"jobcoach/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ObservabilityManager owns the tracer and meter providers of the server.
// A nil or disabled manager hands out no-op tracers and metrics.
type ObservabilityManager struct {
	settings       Settings
	resource       *resource.Resource
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// NewObservabilityManager sets up tracing and metrics from cfg. version is
// the build version, used when the config names none.
func NewObservabilityManager(cfg config.ObservabilityConfig, version string) (*ObservabilityManager, error) {
	settings := Resolve(cfg, version)
	om := &ObservabilityManager{settings: settings}
	if !settings.Enabled {
		return om, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(settings.ServiceName),
			semconv.ServiceVersion(settings.ServiceVersion),
			attribute.String("service.instance.id", settings.ServiceInstance),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	om.resource = res

	if settings.Tracing {
		if err := om.initTracing(); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize tracing: %w", err), om.Shutdown(context.Background()))
		}
	}
	if settings.Metrics {
		if err := om.initMetrics(); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize metrics: %w", err), om.Shutdown(context.Background()))
		}
	}
	return om, nil
}

func (om *ObservabilityManager) initTracing() error {
	opts := []trace.TracerProviderOption{
		trace.WithResource(om.resource),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.settings.SampleRate))),
	}

	if om.settings.ConsoleOutput {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create console trace exporter: %w", err)
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}
	if otlp := om.settings.OTLP; otlp != nil {
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(otlp.Endpoint)}
		if otlp.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		}
		if len(otlp.Headers) > 0 {
			traceOpts = append(traceOpts, otlptracehttp.WithHeaders(otlp.Headers))
		}
		exporter, err := otlptracehttp.New(context.Background(), traceOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}

	// Without an exporter spans are still sampled and carried in the
	// context, so trace ids reach the logs.
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)
	return nil
}

func (om *ObservabilityManager) initMetrics() error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(om.resource)}
	interval := sdkmetric.WithInterval(om.settings.CollectionInterval)

	if om.settings.ConsoleOutput {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, interval)))
	}
	if otlp := om.settings.OTLP; otlp != nil {
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(otlp.Endpoint)}
		if otlp.Insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if len(otlp.Headers) > 0 {
			metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(otlp.Headers))
		}
		exporter, err := otlpmetrichttp.New(context.Background(), metricOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, interval)))
	}
	if prom := om.settings.Prometheus; prom.Enabled {
		reader, handler, err := prometheusExporter()
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(reader))
		if prom.Port == "" {
			om.metricsHandler = handler
		} else {
			srv, err := servePrometheus(prom, handler)
			if err != nil {
				return err
			}
			om.shutdownFuncs = append(om.shutdownFuncs, srv.Shutdown)
		}
	}
	if len(opts) == 1 {
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewManualReader()))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	custom := om.settings.CustomMetrics
	if custom == (config.CustomMetricsConfig{}) {
		custom = AllMetrics()
	}
	var err error
	om.metrics, err = newMetrics(mp.Meter(om.settings.ServiceName), custom)
	return err
}

// Settings returns the resolved configuration.
func (om *ObservabilityManager) Settings() Settings {
	if om == nil {
		return Settings{}
	}
	return om.settings
}

// GetMetrics returns the metrics instance. The result is never nil; when
// metrics are disabled every recording method is a no-op.
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om == nil || om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// MetricsHandler returns the Prometheus scrape handler to mount on the API
// server, or nil when Prometheus is off or has its own port.
func (om *ObservabilityManager) MetricsHandler() http.Handler {
	if om == nil {
		return nil
	}
	return om.metricsHandler
}

// HTTPMiddleware returns otelhttp instrumentation, or a pass-through when
// neither traces nor metrics are set up.
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if om == nil || (om.tracerProvider == nil && om.meterProvider == nil) {
		return func(h http.Handler) http.Handler { return h }
	}

	var opts []otelhttp.Option
	if om.tracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(om.tracerProvider))
	}
	if om.meterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(om.meterProvider))
	}
	return otelhttp.NewMiddleware(om.settings.ServiceName, opts...)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if om == nil || om.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// Shutdown flushes and stops every exporter, in setup order.
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	if om == nil {
		return nil
	}
	var errs []error
	for _, shutdown := range om.shutdownFuncs {
		errs = append(errs, shutdown(ctx))
	}
	om.shutdownFuncs = nil
	return errors.Join(errs...)
}
