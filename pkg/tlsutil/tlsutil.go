// Package tlsutil loads TLS configuration for components that dial
// secured endpoints. File loading is kept out of constructors so that
// component factories stay free of I/O; callers load at connect time.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientConfig names the certificate material for a client-side TLS
// connection. The zero value means no TLS.
type ClientConfig struct {
	// CAFile is a PEM bundle of roots to trust in addition to the system
	// pool. Empty uses the system pool alone.
	CAFile string

	// CertFile and KeyFile hold the client certificate pair for mutual
	// TLS. Both must be set together.
	CertFile string
	KeyFile  string

	// ServerName overrides the hostname used for verification. Empty
	// derives it from the dialed address.
	ServerName string

	// InsecureSkipVerify disables server certificate verification. Only
	// for test endpoints with self-signed certificates.
	InsecureSkipVerify bool
}

// Empty reports whether no TLS settings were given.
func (c ClientConfig) Empty() bool {
	return c == ClientConfig{}
}

// Validate checks the configuration shape without touching the
// filesystem.
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("certFile and keyFile must be set together")
	}
	return nil
}

// Load reads the configured certificate material and builds a
// *tls.Config. Returns nil for an empty configuration.
func (c ClientConfig) Load() (*tls.Config, error) {
	if c.Empty() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
