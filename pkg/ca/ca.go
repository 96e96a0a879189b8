// Package ca fetches and inspects the AgentSitter root CA certificate.
package ca

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudflare/cfssl/helpers"
)

// maxCertSize bounds the download; a root certificate is a few KB.
const maxCertSize = 1 << 20

// DefaultTimeout bounds a certificate download.
const DefaultTimeout = 30 * time.Second

// ErrNoCertificate is returned when PEM data holds no certificate.
var ErrNoCertificate = errors.New("invalid CA certificate: no certificate found")

// Certificate is a fetched CA certificate.
type Certificate struct {
	// Path is the local file the PEM was written to
	Path string
	// PEM is the raw certificate as downloaded
	PEM []byte
	// Cert is the parsed certificate
	Cert *x509.Certificate
}

// Fingerprint returns the SHA-256 fingerprint of the certificate.
func (c *Certificate) Fingerprint() string {
	return Fingerprint(c.Cert)
}

// Fetch downloads the certificate at url, checks that it is a PEM encoded
// X.509 certificate and writes it to path. The file is only written when
// the download parses.
func Fetch(ctx context.Context, client *http.Client, url, path string) (*Certificate, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch CA certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch CA certificate: %s returned %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	cert, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // G306: CA certificates are public and need to be readable
		return nil, fmt.Errorf("failed to write CA certificate: %w", err)
	}

	return &Certificate{Path: path, PEM: data, Cert: cert}, nil
}

// Parse decodes PEM encoded certificate data. A bundle is accepted and its
// first certificate is returned; trust stores import the file as a whole.
func Parse(certPEM []byte) (*x509.Certificate, error) {
	certs, err := helpers.ParseCertificatesPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid CA certificate: %w", err)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}
	return certs[0], nil
}

// Load reads and parses a certificate file.
func Load(path string) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	cert, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &Certificate{Path: path, PEM: data, Cert: cert}, nil
}

// Fingerprint returns the colon separated SHA-256 fingerprint of cert.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
