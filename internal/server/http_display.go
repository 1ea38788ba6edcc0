package server

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// displayServerInfo prints the endpoints and the protective settings the
// server started with.
func (s *Server) displayServerInfo() {
	s.displayEndpoints()

	if len(s.APIKeys) > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys)\n", len(s.APIKeys))
	} else {
		fmt.Println("API authentication: DISABLED")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}

	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %s\n", humanize.IBytes(uint64(s.MaxRequestSize)))
	} else {
		fmt.Println("WARNING: No request size limit configured!")
	}

	if rl := s.RateLimit; rl != nil && rl.Enabled {
		fmt.Printf("Rate limiting: %d requests/min, burst %d, AI requests cost %d (by api key: %t, by ip: %t)\n",
			rl.RequestsPerMin, rl.BurstCapacity, rl.AICost, rl.ByAPIKey, rl.ByIP)
	} else {
		fmt.Println("WARNING: Rate limiting is disabled!")
	}

	s.displayStoreInfo()
}

func (s *Server) displayEndpoints() {
	fmt.Println("Endpoints:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  GET /health\tHealth check (no auth)")
	fmt.Fprintln(tw, "  GET /stats\tServer statistics (no auth)")
	for _, rt := range s.routeTable() {
		fmt.Fprintf(tw, "  %s\t%s\n", rt.pattern, rt.summary)
	}
	_ = tw.Flush()
}

func (s *Server) displayStoreInfo() {
	if s.AppConfig == nil {
		return
	}
	if st := s.AppConfig.Storage; st.Driver == "sqlite" {
		fmt.Printf("Session store: sqlite (%s)\n", st.Path)
	} else {
		fmt.Println("Session store: memory (sessions are lost on restart)")
	}
	if wc := s.AppConfig.Widgets; wc.OverridesFile != "" {
		fmt.Printf("Widget overrides: %s (watch: %t)\n", wc.OverridesFile, wc.Watch)
	}
}

func (s *Server) displayAutoReloadInfo() {
	var sources []string
	if s.TLSConfig.CertFile != "" {
		sources = append(sources, "files")
	}
	if s.AppConfig != nil && s.AppConfig.Vault.Enabled && s.AppConfig.Vault.Secrets.TLSCerts != "" {
		sources = append(sources, "vault every "+s.TLSConfig.VaultPollInterval.String())
	}
	fmt.Printf("TLS auto-reload: ENABLED %v\n", sources)
}
