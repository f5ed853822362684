package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/benmeehan/iot-swarm/pkg/file"
	"golang.org/x/crypto/pkcs12"
)

// TLSFiles names the material used for mutual TLS against the broker.
type TLSFiles struct {
	CACert         string // PEM root(s) trusted for the broker; replaces the system pool
	ClientCert     string // PEM certificate, or a .p12/.pfx bundle holding cert and key
	ClientKey      string // PEM private key; ignored for PKCS#12 bundles
	PKCS12Password string
	MinVersion     string // "1.0" .. "1.3"
	MaxVersion     string // empty means no upper bound
}

// TLSLoader builds tls.Config values from files on disk.
type TLSLoader struct {
	fileClient file.FileOperations
}

// NewTLSLoader creates a TLSLoader reading through fileClient.
func NewTLSLoader(fileClient file.FileOperations) *TLSLoader {
	return &TLSLoader{fileClient: fileClient}
}

// Load reads the CA and client material and returns a client-side mutual TLS config.
func (l *TLSLoader) Load(files TLSFiles) (*tls.Config, error) {
	if files.CACert == "" {
		return nil, errors.New("ca certificate path is required")
	}
	if files.ClientCert == "" {
		return nil, errors.New("client certificate path is required")
	}

	caCert, err := l.fileClient.ReadFileRaw(files.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate from %s", files.CACert)
	}

	clientCert, err := l.loadClientCertificate(files)
	if err != nil {
		return nil, err
	}

	minVersion, err := ParseTLSVersion(files.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum TLS version: %w", err)
	}
	var maxVersion uint16
	if files.MaxVersion != "" {
		maxVersion, err = ParseTLSVersion(files.MaxVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid maximum TLS version: %w", err)
		}
		if maxVersion < minVersion {
			return nil, fmt.Errorf("maximum TLS version %s is below minimum %s", files.MaxVersion, files.MinVersion)
		}
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{clientCert},
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
	}, nil
}

func (l *TLSLoader) loadClientCertificate(files TLSFiles) (tls.Certificate, error) {
	ext := strings.ToLower(filepath.Ext(files.ClientCert))
	if ext == ".p12" || ext == ".pfx" {
		bundle, err := l.fileClient.ReadFileRaw(files.ClientCert)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to read PKCS#12 bundle: %w", err)
		}
		key, cert, err := pkcs12.Decode(bundle, files.PKCS12Password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to decode PKCS#12 bundle: %w", err)
		}
		return tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}, nil
	}

	if files.ClientKey == "" {
		return tls.Certificate{}, errors.New("client key path is required for PEM certificates")
	}
	certPEM, err := l.fileClient.ReadFileRaw(files.ClientCert)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client certificate: %w", err)
	}
	keyPEM, err := l.fileClient.ReadFileRaw(files.ClientKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client key: %w", err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client key pair: %w", err)
	}
	return cert, nil
}

// ParseTLSVersion maps "1.0".."1.3" (optionally prefixed "TLS"/"tlsv") to a
// crypto/tls version constant. Empty input yields TLS 1.2.
func ParseTLSVersion(v string) (uint16, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	s = strings.TrimPrefix(s, "tlsv")
	s = strings.TrimPrefix(s, "tls")
	switch s {
	case "":
		return tls.VersionTLS12, nil
	case "1.0", "1", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unknown TLS version %q", v)
	}
}
