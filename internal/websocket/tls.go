package websocket

import (
	"crypto/tls"
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errTLSNotConfigured = stderrors.New("tls certificate or key path not configured")

// loadTLSConfig builds a server TLS configuration from a PEM certificate and key.
func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errTLSNotConfigured
	}
	for _, path := range []string{certFile, keyFile} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "tls file %s", path)
		}
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load tls key pair")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// secureConfig returns the TLS configuration to serve with, or nil to serve
// plain. Any failure is logged once and downgrades to plain.
func secureConfig(certFile, keyFile string, log logrus.FieldLogger) *tls.Config {
	cfg, err := loadTLSConfig(certFile, keyFile)
	switch {
	case err == nil:
		log.WithField("cert_file", certFile).Info("SSL/TLS enabled")
		return cfg
	case stderrors.Is(err, errTLSNotConfigured):
		log.Warn("SSL certificate or key not configured, running in unsecured mode")
	case stderrors.Is(err, fs.ErrNotExist):
		log.WithFields(logrus.Fields{"cert_file": certFile, "key_file": keyFile}).
			Warn("SSL certificate or key file not found, running in unsecured mode")
	default:
		log.WithError(err).Error("Error loading SSL certificate, running in unsecured mode")
	}
	return nil
}
