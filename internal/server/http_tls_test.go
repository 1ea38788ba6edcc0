package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcoach/internal/config"
)

// selfSigned returns a PEM certificate and key valid for validFor.
func selfSigned(t *testing.T, cn string, validFor time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func writeCertFiles(t *testing.T, dir string, certPEM, keyPEM []byte) (string, string) {
	t.Helper()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	return certFile, keyFile
}

func servedCN(t *testing.T, cs *CertStore) string {
	t.Helper()
	cert, err := cs.TLSConfig().GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	return cert.Leaf.Subject.CommonName
}

func TestNewCertStore(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "content", 30*24*time.Hour)

	t.Run("inline content", func(t *testing.T) {
		cs, err := NewCertStore(config.TLSConfig{Mode: "server", CertContent: string(certPEM), KeyContent: string(keyPEM)}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "content", servedCN(t, cs))
		assert.Equal(t, "content", cs.Status()["source"])
		assert.Equal(t, uint16(tls.VersionTLS12), cs.TLSConfig().MinVersion)
		assert.Equal(t, tls.NoClientCert, cs.TLSConfig().ClientAuth)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewCertStore(config.TLSConfig{Mode: "server", CertContent: string(certPEM)}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("mutual requires CA", func(t *testing.T) {
		_, err := NewCertStore(config.TLSConfig{Mode: "mutual", CertContent: string(certPEM), KeyContent: string(keyPEM)}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("mutual", func(t *testing.T) {
		cs, err := NewCertStore(config.TLSConfig{
			Mode:        "mutual",
			CertContent: string(certPEM),
			KeyContent:  string(keyPEM),
			CAContent:   string(certPEM),
			MinVersion:  "1.3",
		}, nil, nil)
		require.NoError(t, err)

		base := cs.TLSConfig()
		assert.Equal(t, tls.RequireAndVerifyClientCert, base.ClientAuth)
		assert.Equal(t, uint16(tls.VersionTLS13), base.MinVersion)

		perConn, err := base.GetConfigForClient(&tls.ClientHelloInfo{})
		require.NoError(t, err)
		assert.NotNil(t, perConn.ClientCAs)
		assert.Nil(t, perConn.GetConfigForClient)
	})
}

func TestCertStoreReload(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "first", 30*24*time.Hour)
	certFile, keyFile := writeCertFiles(t, dir, certPEM, keyPEM)

	cs, err := NewCertStore(config.TLSConfig{Mode: "server", CertFile: certFile, KeyFile: keyFile}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", servedCN(t, cs))

	certPEM, keyPEM = selfSigned(t, "second", 60*24*time.Hour)
	writeCertFiles(t, dir, certPEM, keyPEM)
	require.NoError(t, cs.Reload())
	assert.Equal(t, "second", servedCN(t, cs))

	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o600))
	assert.Error(t, cs.Reload())
	assert.Equal(t, "second", servedCN(t, cs), "failed reload keeps the current certificate")

	reload := cs.Status()["auto_reload"].(map[string]any)
	assert.Equal(t, 2, reload["reload_count"])
	assert.Equal(t, 1, reload["failure_count"])
	assert.Contains(t, reload["last_error"], "failed to load server cert/key")
}

func TestCertStoreApplyVault(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "initial", 30*24*time.Hour)
	cs, err := NewCertStore(config.TLSConfig{
		Mode:        "mutual",
		CertContent: string(certPEM),
		KeyContent:  string(keyPEM),
		CAContent:   string(certPEM),
	}, nil, nil)
	require.NoError(t, err)
	initialCAs := cs.current.Load().clientCAs

	assert.Error(t, cs.ApplyVault(nil))
	assert.Error(t, cs.ApplyVault(&CertificateData{CertContent: "bad", KeyContent: "bad"}))
	assert.Equal(t, "initial", servedCN(t, cs))

	certPEM, keyPEM = selfSigned(t, "rotated", 90*24*time.Hour)
	require.NoError(t, cs.ApplyVault(&CertificateData{CertContent: string(certPEM), KeyContent: string(keyPEM)}))
	assert.Equal(t, "rotated", servedCN(t, cs))
	assert.Same(t, initialCAs, cs.current.Load().clientCAs, "empty CA keeps the current pool")
	assert.Equal(t, "vault", cs.Status()["source"])
}

func TestCertStoreStatus(t *testing.T) {
	tests := []struct {
		name        string
		validFor    time.Duration
		wantStatus  string
		wantHealthy bool
	}{
		{name: "ok", validFor: 30 * 24 * time.Hour, wantStatus: "ok", wantHealthy: true},
		{name: "warning", validFor: 3 * 24 * time.Hour, wantStatus: "warning", wantHealthy: true},
		{name: "critical", validFor: 2 * time.Hour, wantStatus: "critical", wantHealthy: false},
		{name: "expired", validFor: -time.Minute, wantStatus: "expired", wantHealthy: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certPEM, keyPEM := selfSigned(t, tt.name, tt.validFor)
			cs, err := NewCertStore(config.TLSConfig{Mode: "server", CertContent: string(certPEM), KeyContent: string(keyPEM)}, nil, nil)
			require.NoError(t, err)

			status := cs.Status()
			assert.Equal(t, tt.wantStatus, status["status"])
			assert.Equal(t, tt.wantHealthy, status["healthy"])
			assert.WithinDuration(t, time.Now().Add(tt.validFor), cs.NotAfter(), time.Minute)
		})
	}
}

func TestCertStoreAutoReloadFromFiles(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "first", 30*24*time.Hour)
	certFile, keyFile := writeCertFiles(t, dir, certPEM, keyPEM)

	cs, err := NewCertStore(config.TLSConfig{
		Mode:           "server",
		CertFile:       certFile,
		KeyFile:        keyFile,
		AutoReload:     true,
		ReloadDebounce: 50 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cs.StartAutoReload(nil, ""))
	defer func() { _ = cs.Stop() }()

	reload := cs.Status()["auto_reload"].(map[string]any)
	assert.Equal(t, true, reload["file_watcher_running"])
	assert.ElementsMatch(t, []string{certFile, keyFile}, reload["watched_files"])

	certPEM, keyPEM = selfSigned(t, "second", 30*24*time.Hour)
	writeCertFiles(t, dir, certPEM, keyPEM)

	assert.Eventually(t, func() bool {
		cert, err := cs.TLSConfig().GetCertificate(&tls.ClientHelloInfo{})
		return err == nil && cert.Leaf.Subject.CommonName == "second"
	}, 5*time.Second, 50*time.Millisecond)
}
