package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusSettings controls the Prometheus scrape endpoint. With an
// empty Port the endpoint is mounted on the API server instead of a
// listener of its own.
type PrometheusSettings struct {
	Enabled  bool
	Endpoint string
	Port     string
}

// prometheusExporter returns a metric reader that feeds a private
// registry, plus the scrape handler for that registry. The registry also
// carries the Go runtime and process collectors.
func prometheusExporter() (metric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry:          registry,
		EnableOpenMetrics: true,
	})
	return exporter, handler, nil
}

// servePrometheus binds the metrics port and serves handler at endpoint in
// the background. Binding happens before returning so port conflicts
// surface as an error.
func servePrometheus(settings PrometheusSettings, handler http.Handler) (*http.Server, error) {
	ln, err := net.Listen("tcp", ":"+settings.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port %s: %w", settings.Port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+settings.Endpoint, handler)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Prometheus server stopped", "error", err)
		}
	}()

	return server, nil
}
