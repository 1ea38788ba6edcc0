package server

import (
	"time"

	"jobcoach/internal/ai"
	"jobcoach/internal/config"
	"jobcoach/internal/copilot"
	jobcoachErrors "jobcoach/internal/errors"
	"jobcoach/internal/store"
	"jobcoach/internal/widget"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	TLSConfig config.TLSConfig
	Certs     *CertStore

	// API Authentication
	APIKeys map[string]bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxRequestSize int64

	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Domain dependencies. Copilot is built in Handler from the others.
	Store     store.Store
	Registry  *widget.RegistryHolder
	Overrides *widget.OverridesWatcher
	AI        *ai.Services
	Copilot   *copilot.Service

	Logger *jobcoachErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	TLSConfig      config.TLSConfig
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig

	Store    store.Store
	Registry *widget.RegistryHolder
	AI       *ai.Services
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, logger *jobcoachErrors.Logger) *Server {
	if logger == nil {
		logger = jobcoachErrors.Discard()
	}

	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(*cfg.RateLimit, logger)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = widget.NewRegistryHolder(widget.DefaultRegistry())
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		TLSConfig:      cfg.TLSConfig,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Store:          cfg.Store,
		Registry:       registry,
		AI:             cfg.AI,
		Logger:         logger,
	}
}

// NewServerFromConfig creates a Server from the application configuration.
func NewServerFromConfig(appCfg *config.Config, version string, st store.Store, registry *widget.RegistryHolder, aiServices *ai.Services, logger *jobcoachErrors.Logger) *Server {
	srv := appCfg.Server
	return NewServer(appCfg, ServerConfig{
		Host:           srv.Host,
		Port:           srv.Port,
		Version:        version,
		TLSConfig:      srv.TLS,
		APIKeys:        srv.APIKeys,
		ReadTimeout:    srv.ReadTimeout,
		WriteTimeout:   srv.WriteTimeout,
		IdleTimeout:    srv.IdleTimeout,
		MaxRequestSize: srv.MaxBodyBytes,
		RateLimit:      &srv.RateLimit,
		Store:          st,
		Registry:       registry,
		AI:             aiServices,
	}, logger)
}
