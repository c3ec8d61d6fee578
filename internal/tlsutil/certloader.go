// Package tlsutil serves the origin TLS certificate and reloads it when the
// files on disk are rotated.
package tlsutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/emeditor/get-price/internal/metrics"
)

const reloadDebounce = 300 * time.Millisecond

// CertLoader holds the current certificate for tls.Config.GetCertificate.
// A rotation that fails to parse leaves the previous certificate in place.
type CertLoader struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time
	certFile string
	keyFile  string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// New loads the certificate and starts watching both files.
func New(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	cl := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	if err := cl.load(); err != nil {
		return nil, fmt.Errorf("initial certificate load: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	for _, f := range []string{certFile, keyFile} {
		if err := watcher.Add(f); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", f, err)
		}
	}
	cl.watcher = watcher
	go cl.watchLoop()

	logger.Info("TLS certificate loaded, watching for changes",
		"cert_file", certFile, "key_file", keyFile, "not_after", cl.NotAfter())
	return cl, nil
}

// TLSConfig returns a server TLS config backed by the loader.
func (cl *CertLoader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: cl.GetCertificate,
	}
}

// GetCertificate returns the current certificate on every handshake.
func (cl *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.cert, nil
}

// NotAfter returns the expiry of the current certificate.
func (cl *CertLoader) NotAfter() time.Time {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.notAfter
}

// Check fails once the current certificate has expired. It has the shape of
// a readiness check.
func (cl *CertLoader) Check(context.Context) error {
	if na := cl.NotAfter(); !cl.now().Before(na) {
		return fmt.Errorf("TLS certificate expired at %s", na.Format(time.RFC3339))
	}
	return nil
}

// Reload re-reads the cert/key pair from disk.
func (cl *CertLoader) Reload() error {
	if err := cl.load(); err != nil {
		cl.logger.Error("TLS certificate reload failed, keeping current",
			"error", err, "cert_file", cl.certFile, "key_file", cl.keyFile)
		return err
	}
	cl.logger.Info("TLS certificate reloaded", "cert_file", cl.certFile, "not_after", cl.NotAfter())
	return nil
}

// Stop terminates the file watcher. Safe to call twice.
func (cl *CertLoader) Stop() {
	cl.stopOnce.Do(func() {
		close(cl.stopCh)
		if cl.watcher != nil {
			cl.watcher.Close()
		}
	})
}

func (cl *CertLoader) load() error {
	cert, err := tls.LoadX509KeyPair(cl.certFile, cl.keyFile)
	if err != nil {
		return err
	}
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("parsing leaf certificate: %w", err)
		}
	}

	cl.mu.Lock()
	cl.cert = &cert
	cl.notAfter = leaf.NotAfter
	cl.mu.Unlock()

	metrics.TLSCertExpiry.Set(float64(leaf.NotAfter.Unix()))
	return nil
}

func (cl *CertLoader) watchLoop() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-cl.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					cl.Reload() //nolint:errcheck
				})
			}
		case err, ok := <-cl.watcher.Errors:
			if !ok {
				return
			}
			cl.logger.Error("TLS cert file watcher error", "error", err)
		case <-cl.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}
