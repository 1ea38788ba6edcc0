package server

import (
	"fmt"
	"sync"
	"time"

	"jobcoach/internal/config"
	"jobcoach/internal/errors"
)

// VaultSecretReader is the part of the Vault client the watcher uses.
// *config.VaultClient implements it.
type VaultSecretReader interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// CertificateData holds certificate data fetched from Vault
type CertificateData struct {
	CertContent string
	KeyContent  string
	CAContent   string
}

// VaultReloadCallback is called when new certificate data is available from Vault
type VaultReloadCallback func(data *CertificateData, err error)

// VaultWatcher polls a KV v2 secret and hands new certificate data to a
// callback whenever the secret version increases.
type VaultWatcher struct {
	mu sync.RWMutex

	client         VaultSecretReader
	secretPath     string
	pollInterval   time.Duration
	reloadCallback VaultReloadCallback
	logger         *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastPoll    time.Time
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(client VaultSecretReader, secretPath string, pollInterval time.Duration, reloadCallback VaultReloadCallback, logger *errors.Logger) *VaultWatcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = errors.Discard()
	}
	return &VaultWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start records the current secret version and begins polling. The
// certificates in use at start are assumed to be that version.
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}

	if secret, err := vw.client.GetSecretV2(vw.secretPath); err != nil {
		vw.logger.Warn("Failed to read initial Vault secret version", "secret_path", vw.secretPath, "error", err)
	} else if secret != nil {
		vw.lastVersion = secret.Version
	}

	vw.running = true
	go vw.pollLoop()
	vw.logger.Info("Vault watcher started", "secret_path", vw.secretPath, "poll_interval", vw.pollInterval)
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.running {
		return
	}
	close(vw.stopChan)
	vw.running = false
	vw.logger.Info("Vault watcher stopped")
}

func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-vw.stopChan:
			return
		}
	}
}

// poll reads the secret once and calls the callback if its version is
// newer than the last one seen.
func (vw *VaultWatcher) poll() {
	secret, err := vw.client.GetSecretV2(vw.secretPath)

	vw.mu.Lock()
	vw.lastPoll = time.Now()
	if err != nil {
		vw.mu.Unlock()
		vw.logger.LogError(err, "Failed to check Vault for updates")
		vw.reloadCallback(nil, fmt.Errorf("failed to read secret: %w", err))
		return
	}
	if secret == nil || secret.Version <= vw.lastVersion {
		vw.mu.Unlock()
		return
	}
	vw.lastVersion = secret.Version
	vw.mu.Unlock()

	vw.logger.Info("Vault secret changed, triggering certificate reload", "version", secret.Version)
	vw.reloadCallback(certificateData(secret), nil)
}

func certificateData(secret *config.VaultSecret) *CertificateData {
	data := &CertificateData{}
	if v, ok := secret.Data["cert"].(string); ok {
		data.CertContent = v
	}
	if v, ok := secret.Data["key"].(string); ok {
		data.KeyContent = v
	}
	if v, ok := secret.Data["ca"].(string); ok {
		data.CAContent = v
	}
	return data
}

// Status returns the current status of the VaultWatcher for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	status := map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
	if !vw.lastPoll.IsZero() {
		status["last_poll"] = vw.lastPoll.Format(time.RFC3339)
	}
	return status
}
