package cli

import (
	"fmt"

	"jobcoach/internal/ai"
	"jobcoach/internal/server"
	"jobcoach/internal/store"
	"jobcoach/internal/widget"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the co-pilot HTTP server",
	Long: `Start an HTTP server that stores applications, narratives and interviews
and serves their co-pilot sessions.

Available endpoints:
- GET /interviews/{id}/copilot: Open a co-pilot session (?mode=live|prep&breakpoint=lg|md|sm)
- PUT /interviews/{id}/copilot: Save the full session
- PUT /interviews/{id}/widgets/{widget}: Edit one widget
- POST /interviews/{id}/cheatsheet|outline|answers: AI generation
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
	serveCmd.Flags().String("storage", "", "Session store driver: memory or sqlite (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
}

// applyServeFlags copies flags set on the command line over the loaded
// configuration, which was read before flags were parsed.
func applyServeFlags(cmd *cobra.Command, set func(flag, value string)) {
	for _, name := range []string{"port", "host", "tls-mode", "cert-file", "key-file", "ca-file", "storage", "db"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			set(name, f.Value.String())
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	ctx := cmd.Context()

	applyServeFlags(cmd, func(flag, value string) {
		switch flag {
		case "port":
			cfg.Server.Port = value
		case "host":
			cfg.Server.Host = value
		case "tls-mode":
			cfg.Server.TLS.Mode = value
		case "cert-file":
			cfg.Server.TLS.CertFile = value
		case "key-file":
			cfg.Server.TLS.KeyFile = value
		case "ca-file":
			cfg.Server.TLS.CAFile = value
		case "storage":
			cfg.Storage.Driver = value
		case "db":
			cfg.Storage.Path = value
		}
	})

	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.LogError(err, "Failed to close session store")
		}
	}()

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return err
	}

	aiServices, err := ai.NewServices(cfg, logger)
	if err != nil {
		// Sessions work without AI; only the generation endpoints fail.
		logger.Warn("Some AI operations are unavailable", "error", err)
	}
	defer func() {
		if err := aiServices.Close(); err != nil {
			logger.LogError(err, "Failed to close AI services")
		}
	}()

	srv := server.NewServerFromConfig(cfg, Version, st, widget.NewRegistryHolder(reg), aiServices, logger)
	return srv.Start()
}
