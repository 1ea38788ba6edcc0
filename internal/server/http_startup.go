package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobcoach/internal/config"
	"jobcoach/internal/copilot"
	"jobcoach/internal/observability"
	"jobcoach/internal/widget"
)

// Start starts the HTTP server with all configured components
func (s *Server) Start() error {
	om, err := s.initializeObservability()
	if err != nil {
		return err
	}
	defer s.shutdownObservability(om)

	if err := s.startOverridesWatcher(om.GetMetrics()); err != nil {
		return err
	}

	httpServer, err := s.setupHTTPServer(om)
	if err != nil {
		return err
	}

	if err := s.configureTLS(httpServer, om.GetMetrics()); err != nil {
		return err
	}

	s.displayServerInfo()

	return s.startWithGracefulShutdown(httpServer)
}

// initializeObservability sets up observability components
func (s *Server) initializeObservability() (*observability.ObservabilityManager, error) {
	var obsConfig config.ObservabilityConfig
	if s.AppConfig != nil {
		obsConfig = s.AppConfig.Observability
	}
	om, err := observability.NewObservabilityManager(obsConfig, s.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	return om, nil
}

// shutdownObservability handles observability cleanup
func (s *Server) shutdownObservability(om *observability.ObservabilityManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := om.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}

// Handler builds the co-pilot service, if not already set, and returns
// the routed handler wrapped in HTTP instrumentation.
func (s *Server) Handler(om *observability.ObservabilityManager) (http.Handler, error) {
	if s.Copilot == nil {
		svc, err := copilot.New(s.copilotConfig(om.GetMetrics()))
		if err != nil {
			return nil, fmt.Errorf("failed to create co-pilot service: %w", err)
		}
		s.Copilot = svc
	}
	return om.HTTPMiddleware()(requestIDMiddleware(s.setupRoutes(om))), nil
}

func (s *Server) copilotConfig(metrics *observability.Metrics) copilot.Config {
	cfg := copilot.Config{
		Store:    s.Store,
		Registry: s.Registry,
		Metrics:  metrics,
		Logger:   s.Logger,
	}
	// A nil *ai.Services must not become a non-nil interface.
	if s.AI != nil {
		cfg.AI = s.AI
	}
	if s.AppConfig != nil {
		cfg.DefaultMode = widget.Mode(s.AppConfig.App.DefaultMode)
		cfg.DefaultBreakpoint = widget.Breakpoint(s.AppConfig.App.DefaultBreakpoint)
	}
	return cfg
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer(om *observability.ObservabilityManager) (*http.Server, error) {
	handler, err := s.Handler(om)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.Host, s.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}, nil
}

// startOverridesWatcher reloads the widget overrides file on change when
// watching is enabled.
func (s *Server) startOverridesWatcher(metrics *observability.Metrics) error {
	if s.AppConfig == nil {
		return nil
	}
	wc := s.AppConfig.Widgets
	if wc.OverridesFile == "" || !wc.Watch {
		return nil
	}

	s.Overrides = widget.NewOverridesWatcher(wc.OverridesFile, widget.DefaultRegistry(), s.Registry, wc.DebounceDelay,
		func(_ *widget.Registry, err error) {
			metrics.RecordRegistryReload(context.Background(), err == nil)
		}, s.Logger)
	if err := s.Overrides.Start(); err != nil {
		return fmt.Errorf("failed to start widget overrides watcher: %w", err)
	}
	return nil
}

// configureTLS loads certificates for server and mutual modes and starts
// certificate auto-reload when enabled.
func (s *Server) configureTLS(httpServer *http.Server, metrics *observability.Metrics) error {
	switch s.TLSConfig.Mode {
	case "", "disabled":
		fmt.Printf("Starting server on http://%s\n", httpServer.Addr)
		fmt.Println("TLS mode: Disabled (HTTP only)")
		return nil
	case "server":
		fmt.Printf("Starting server with HTTPS (server-only TLS) on https://%s\n", httpServer.Addr)
		fmt.Println("TLS mode: Server-only (no client certificates required)")
	case "mutual":
		fmt.Printf("Starting server with mTLS (mutual TLS) on https://%s\n", httpServer.Addr)
		fmt.Println("TLS mode: Mutual (client certificates required)")
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", s.TLSConfig.Mode)
	}

	certs, err := NewCertStore(s.TLSConfig, metrics, s.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	s.Certs = certs
	httpServer.TLSConfig = certs.TLSConfig()

	if !s.TLSConfig.AutoReload {
		return nil
	}

	vaultClient, secretPath, err := s.initializeVaultClient()
	if err != nil {
		return err
	}
	if err := certs.StartAutoReload(vaultClient, secretPath); err != nil {
		return err
	}
	s.displayAutoReloadInfo()
	return nil
}

// initializeVaultClient returns a Vault client when TLS certificates are
// sourced from Vault.
func (s *Server) initializeVaultClient() (VaultSecretReader, string, error) {
	if s.AppConfig == nil || !s.AppConfig.Vault.Enabled || s.AppConfig.Vault.Secrets.TLSCerts == "" {
		return nil, "", nil
	}
	vc, err := config.NewVaultClient(s.AppConfig.Vault, s.Logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize Vault client: %w", err)
	}
	return vc, s.AppConfig.Vault.Secrets.TLSCerts, nil
}

// startWithGracefulShutdown starts the HTTP server and handles graceful shutdown
func (s *Server) startWithGracefulShutdown(server *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", server.Addr,
			"tls_enabled", server.TLSConfig != nil)

		var err error
		if server.TLSConfig != nil {
			// Certificates come from TLSConfig.GetCertificate.
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		s.stopBackground()
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-quit:
		s.Logger.Info("Received shutdown signal, starting graceful shutdown",
			"signal", sig.String())

		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.stopBackground()

	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// stopBackground stops watchers and the rate limiter.
func (s *Server) stopBackground() {
	if s.Certs != nil {
		if err := s.Certs.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop certificate watchers")
		}
	}
	if s.Overrides != nil {
		if err := s.Overrides.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop widget overrides watcher")
		}
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}
}
