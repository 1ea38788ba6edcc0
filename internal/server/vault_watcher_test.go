package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"jobcoach/internal/config"
)

// MockVaultClient is a mock implementation for testing
type MockVaultClient struct {
	mu      sync.Mutex
	secrets map[string]*config.VaultSecret
	err     error
	reads   int
}

func (m *MockVaultClient) GetSecretV2(path string) (*config.VaultSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	if secret, exists := m.secrets[path]; exists {
		return secret, nil
	}
	return nil, nil
}

func (m *MockVaultClient) set(path string, secret *config.VaultSecret, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[path] = secret
	m.err = err
}

type reloadRecorder struct {
	data []*CertificateData
	errs []error
}

func (r *reloadRecorder) callback(data *CertificateData, err error) {
	r.data = append(r.data, data)
	r.errs = append(r.errs, err)
}

func certSecret(version int64, cert string) *config.VaultSecret {
	return &config.VaultSecret{
		Data: map[string]any{
			"cert": cert,
			"key":  "key-" + cert,
			"ca":   "ca-" + cert,
		},
		Version: version,
	}
}

func TestVaultWatcherPoll(t *testing.T) {
	const path = "secret/data/tls"
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{path: certSecret(1, "v1")}}
	rec := &reloadRecorder{}

	vw := NewVaultWatcher(client, path, time.Hour, rec.callback, nil)
	if err := vw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer vw.Stop()

	if err := vw.Start(); err == nil {
		t.Error("expected second Start to fail")
	}

	// The version seen at start is current, so an unchanged secret is quiet.
	vw.poll()
	if len(rec.data) != 0 {
		t.Fatalf("expected no reload for unchanged version, got %d", len(rec.data))
	}

	client.set(path, certSecret(2, "v2"), nil)
	vw.poll()
	if len(rec.data) != 1 {
		t.Fatalf("expected one reload, got %d", len(rec.data))
	}
	if rec.errs[0] != nil {
		t.Fatalf("unexpected error: %v", rec.errs[0])
	}
	got := rec.data[0]
	if got.CertContent != "v2" || got.KeyContent != "key-v2" || got.CAContent != "ca-v2" {
		t.Errorf("unexpected certificate data: %+v", got)
	}

	// Polling the same version again does not reload.
	vw.poll()
	if len(rec.data) != 1 {
		t.Errorf("expected reload count to stay at 1, got %d", len(rec.data))
	}

	client.set(path, certSecret(2, "v2"), fmt.Errorf("permission denied"))
	vw.poll()
	if len(rec.errs) != 2 || rec.errs[1] == nil || rec.data[1] != nil {
		t.Errorf("expected read failure to reach the callback, got data=%v errs=%v", rec.data, rec.errs)
	}
}

func TestVaultWatcherStartWithoutSecret(t *testing.T) {
	const path = "secret/data/tls"
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}, err: fmt.Errorf("vault sealed")}
	rec := &reloadRecorder{}

	vw := NewVaultWatcher(client, path, 0, rec.callback, nil)
	if err := vw.Start(); err != nil {
		t.Fatalf("Start should tolerate an unreadable secret: %v", err)
	}
	defer vw.Stop()

	// Any version is newer than an unknown one.
	client.set(path, certSecret(1, "v1"), nil)
	vw.poll()
	if len(rec.data) != 1 || rec.data[0].CertContent != "v1" {
		t.Errorf("expected reload with v1 data, got %+v", rec.data)
	}
}

func TestCertificateDataIgnoresNonStrings(t *testing.T) {
	data := certificateData(&config.VaultSecret{Data: map[string]any{
		"cert": "pem",
		"key":  42,
	}})
	if data.CertContent != "pem" {
		t.Errorf("CertContent = %q, want pem", data.CertContent)
	}
	if data.KeyContent != "" || data.CAContent != "" {
		t.Errorf("expected empty key and CA, got %+v", data)
	}
}

func TestVaultWatcherStatus(t *testing.T) {
	const path = "secret/data/tls"
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{path: certSecret(3, "v3")}}
	vw := NewVaultWatcher(client, path, time.Minute, func(*CertificateData, error) {}, nil)

	status := vw.Status()
	if status["running"] != false {
		t.Errorf("expected watcher not running before Start")
	}
	if _, ok := status["last_poll"]; ok {
		t.Errorf("expected no last_poll before polling")
	}

	if err := vw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	vw.poll()
	status = vw.Status()
	vw.Stop()
	vw.Stop()

	if status["running"] != true {
		t.Errorf("expected watcher running")
	}
	if status["poll_interval"] != "1m0s" {
		t.Errorf("poll_interval = %v, want 1m0s", status["poll_interval"])
	}
	if status["last_version"] != int64(3) {
		t.Errorf("last_version = %v, want 3", status["last_version"])
	}
	if _, ok := status["last_poll"]; !ok {
		t.Errorf("expected last_poll after polling")
	}
	if vw.Status()["running"] != false {
		t.Errorf("expected watcher stopped")
	}
}
