package observability

import (
	"cmp"
	"os"
	"time"

	"jobcoach/internal/config"
)

// Settings is the resolved observability configuration.
type Settings struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	ServiceInstance string
	ConsoleOutput   bool

	Tracing    bool
	SampleRate float64

	Metrics            bool
	CollectionInterval time.Duration
	CustomMetrics      config.CustomMetricsConfig

	// OTLP is nil unless the OTLP exporters are enabled.
	OTLP       *config.OTLPConfig
	Prometheus PrometheusSettings
}

// Resolve turns the observability config section into Settings. Unset
// names and intervals get defaults; version is the build version used when
// no service version is configured. The tracing sample rate overrides the
// top-level one when set.
func Resolve(cfg config.ObservabilityConfig, version string) Settings {
	s := Settings{
		Enabled:            cfg.Enabled,
		ServiceName:        cmp.Or(cfg.ServiceName, "jobcoach"),
		ServiceVersion:     cmp.Or(cfg.ServiceVersion, version),
		ServiceInstance:    cmp.Or(cfg.ServiceInstance, defaultInstanceID()),
		ConsoleOutput:      cfg.ConsoleOutput,
		Tracing:            cfg.Tracing.Enabled,
		SampleRate:         cmp.Or(cfg.Tracing.SampleRate, cfg.SampleRate, 1.0),
		Metrics:            cfg.Metrics.Enabled,
		CollectionInterval: cmp.Or(cfg.Metrics.CollectionInterval, 15*time.Second),
		CustomMetrics:      cfg.CustomMetrics,
		Prometheus: PrometheusSettings{
			Enabled:  cfg.Prometheus.Enabled,
			Endpoint: cmp.Or(cfg.Prometheus.Endpoint, "/metrics"),
			Port:     cfg.Prometheus.Port,
		},
	}
	if cfg.OTLP.Enabled {
		otlp := cfg.OTLP
		s.OTLP = &otlp
	}
	return s
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "jobcoach-" + host
	}
	return "jobcoach-1"
}
