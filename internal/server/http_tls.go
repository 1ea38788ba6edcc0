package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"jobcoach/internal/config"
	"jobcoach/internal/errors"
	"jobcoach/internal/observability"
)

// Certificates expiring within these windows are reported on /health.
const (
	certCriticalThreshold = 24 * time.Hour
	certWarningThreshold  = 7 * 24 * time.Hour
)

// certBundle is one loaded generation of TLS material.
type certBundle struct {
	cert      *tls.Certificate
	clientCAs *x509.CertPool
	notAfter  time.Time
	source    string
}

// CertStore holds the serving certificate and client CA pool. Reloads
// swap both at once; a failed reload keeps the previous generation.
type CertStore struct {
	cfg     config.TLSConfig
	metrics *observability.Metrics
	logger  *errors.Logger

	current atomic.Pointer[certBundle]

	mu          sync.Mutex
	reloads     int
	failures    int
	lastReload  time.Time
	lastError   string
	fileWatcher *CertWatcher
	vault       *VaultWatcher
}

// NewCertStore loads the certificate configured in cfg.
func NewCertStore(cfg config.TLSConfig, metrics *observability.Metrics, logger *errors.Logger) (*CertStore, error) {
	if logger == nil {
		logger = errors.Discard()
	}
	cs := &CertStore{cfg: cfg, metrics: metrics, logger: logger}

	b, err := cs.loadConfigured()
	if err != nil {
		return nil, err
	}
	cs.current.Store(b)
	metrics.RecordCertReload(context.Background(), true, b.notAfter)
	return cs, nil
}

func (cs *CertStore) mutual() bool {
	return cs.cfg.Mode == "mutual"
}

// loadConfigured reads the certificate from inline content or files.
func (cs *CertStore) loadConfigured() (*certBundle, error) {
	certPEM, err := readPEM(cs.cfg.CertContent, cs.cfg.CertFile, "certificate")
	if err != nil {
		return nil, err
	}
	keyPEM, err := readPEM(cs.cfg.KeyContent, cs.cfg.KeyFile, "private key")
	if err != nil {
		return nil, err
	}
	var caPEM []byte
	if cs.mutual() {
		if caPEM, err = readPEM(cs.cfg.CAContent, cs.cfg.CAFile, "CA certificate"); err != nil {
			return nil, err
		}
	}

	source := "file"
	if cs.cfg.CertContent != "" {
		source = "content"
	}
	return buildBundle(certPEM, keyPEM, caPEM, source)
}

func readPEM(content, file, what string) ([]byte, error) {
	if content != "" {
		return []byte(content), nil
	}
	if file == "" {
		return nil, fmt.Errorf("TLS %s is required (provide either a file or content)", what)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS %s: %w", what, err)
	}
	return data, nil
}

func buildBundle(certPEM, keyPEM, caPEM []byte, source string) (*certBundle, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load server cert/key: %w", err)
	}
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("failed to parse server certificate: %w", err)
		}
		cert.Leaf = leaf
	}

	b := &certBundle{cert: &cert, notAfter: leaf.NotAfter, source: source}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to append CA cert")
		}
		b.clientCAs = pool
	}
	return b, nil
}

// Reload re-reads the configured certificate files.
func (cs *CertStore) Reload() error {
	b, err := cs.loadConfigured()
	return cs.swap(b, err)
}

// ApplyVault installs certificate material fetched from Vault. An empty
// CA keeps the current client CA pool.
func (cs *CertStore) ApplyVault(data *CertificateData) error {
	if data == nil {
		return cs.swap(nil, fmt.Errorf("no certificate data received from vault"))
	}
	b, err := buildBundle([]byte(data.CertContent), []byte(data.KeyContent), []byte(data.CAContent), "vault")
	if err == nil && b.clientCAs == nil && cs.mutual() {
		b.clientCAs = cs.current.Load().clientCAs
	}
	return cs.swap(b, err)
}

func (cs *CertStore) swap(b *certBundle, err error) error {
	ctx := context.Background()

	cs.mu.Lock()
	cs.reloads++
	cs.lastReload = time.Now()
	if err != nil {
		cs.failures++
		cs.lastError = err.Error()
		cs.mu.Unlock()

		cs.metrics.RecordCertReload(ctx, false, time.Time{})
		cs.logger.LogError(err, "Failed to reload TLS certificates, keeping current certificate")
		return err
	}
	cs.lastError = ""
	cs.current.Store(b)
	cs.mu.Unlock()

	cs.metrics.RecordCertReload(ctx, true, b.notAfter)
	cs.logger.Info("TLS certificates reloaded",
		"source", b.source,
		"not_after", b.notAfter.Format(time.RFC3339))
	return nil
}

// NotAfter returns the expiry of the serving certificate.
func (cs *CertStore) NotAfter() time.Time {
	return cs.current.Load().notAfter
}

// TLSConfig returns a server TLS configuration that always serves the
// current certificate generation.
func (cs *CertStore) TLSConfig() *tls.Config {
	base := &tls.Config{
		MinVersion: minTLSVersion(cs.cfg.MinVersion),
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return cs.current.Load().cert, nil
		},
	}
	if !cs.mutual() {
		base.ClientAuth = tls.NoClientCert
		return base
	}

	base.ClientAuth = clientAuthPolicy(cs.cfg.ClientAuthPolicy)
	base.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		c := base.Clone()
		c.GetConfigForClient = nil
		c.ClientCAs = cs.current.Load().clientCAs
		return c, nil
	}
	return base
}

func minTLSVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

func clientAuthPolicy(policy string) tls.ClientAuthType {
	switch policy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}

// StartAutoReload starts the file watcher, and the Vault poller when a
// client is given and a Vault secret path is configured.
func (cs *CertStore) StartAutoReload(vaultClient VaultSecretReader, secretPath string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if files := cs.watchedFiles(); len(files) > 0 {
		w := NewCertWatcher(files, cs.cfg.ReloadDebounce, func() {
			_ = cs.Reload()
		}, cs.logger)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start certificate file watcher: %w", err)
		}
		cs.fileWatcher = w
	}

	if vaultClient != nil && secretPath != "" {
		v := NewVaultWatcher(vaultClient, secretPath, cs.cfg.VaultPollInterval, func(data *CertificateData, err error) {
			if err != nil {
				cs.logger.LogError(err, "Failed to fetch TLS certificates from Vault")
				return
			}
			_ = cs.ApplyVault(data)
		}, cs.logger)
		if err := v.Start(); err != nil {
			return fmt.Errorf("failed to start vault watcher: %w", err)
		}
		cs.vault = v
	}
	return nil
}

// Stop stops any running watchers.
func (cs *CertStore) Stop() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var err error
	if cs.fileWatcher != nil {
		err = cs.fileWatcher.Stop()
	}
	if cs.vault != nil {
		cs.vault.Stop()
	}
	return err
}

func (cs *CertStore) watchedFiles() []string {
	var files []string
	for _, f := range []string{cs.cfg.CertFile, cs.cfg.KeyFile} {
		if f != "" {
			files = append(files, f)
		}
	}
	if cs.mutual() && cs.cfg.CAFile != "" {
		files = append(files, cs.cfg.CAFile)
	}
	return files
}

// Status reports certificate expiry and reload counters for /health.
func (cs *CertStore) Status() map[string]any {
	b := cs.current.Load()
	timeToExpiry := time.Until(b.notAfter)

	status := map[string]any{
		"source":               b.source,
		"not_after":            b.notAfter.Format(time.RFC3339),
		"time_to_expiry_hours": int(timeToExpiry.Hours()),
	}
	switch {
	case timeToExpiry <= 0:
		status["healthy"], status["status"] = false, "expired"
	case timeToExpiry <= certCriticalThreshold:
		status["healthy"], status["status"] = false, "critical"
	case timeToExpiry <= certWarningThreshold:
		status["healthy"], status["status"] = true, "warning"
	default:
		status["healthy"], status["status"] = true, "ok"
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	reload := map[string]any{
		"enabled":       cs.cfg.AutoReload,
		"reload_count":  cs.reloads,
		"failure_count": cs.failures,
	}
	if !cs.lastReload.IsZero() {
		reload["last_reload_time"] = cs.lastReload.Format(time.RFC3339)
	}
	if cs.lastError != "" {
		reload["last_error"] = cs.lastError
	}
	if cs.fileWatcher != nil {
		reload["file_watcher_running"] = cs.fileWatcher.IsRunning()
		reload["watched_files"] = cs.fileWatcher.Files()
	}
	if cs.vault != nil {
		reload["vault_watcher"] = cs.vault.Status()
	}
	status["auto_reload"] = reload
	return status
}
