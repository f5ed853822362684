package mqtt_test

import (
	"crypto/tls"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/iot-swarm/internal/mocks"
	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/mqtt"
)

func TestTLSLoader_Load_PEM(t *testing.T) {
	pki, err := mocks.WritePKI(t.TempDir())
	require.NoError(t, err)

	loader := mqtt.NewTLSLoader(file.NewFileService())
	cfg, err := loader.Load(mqtt.TLSFiles{
		CACert:     pki.CACert,
		ClientCert: pki.ClientCert,
		ClientKey:  pki.ClientKey,
		MinVersion: "1.2",
		MaxVersion: "TLSv1.3",
	})

	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
}

func TestTLSLoader_Load_Errors(t *testing.T) {
	pki, err := mocks.WritePKI(t.TempDir())
	require.NoError(t, err)
	loader := mqtt.NewTLSLoader(file.NewFileService())

	tests := []struct {
		name  string
		files mqtt.TLSFiles
	}{
		{"missing ca", mqtt.TLSFiles{ClientCert: pki.ClientCert, ClientKey: pki.ClientKey}},
		{"missing cert", mqtt.TLSFiles{CACert: pki.CACert}},
		{"missing key", mqtt.TLSFiles{CACert: pki.CACert, ClientCert: pki.ClientCert}},
		{"ca is not pem", mqtt.TLSFiles{CACert: pki.ClientKey, ClientCert: pki.ClientCert, ClientKey: pki.ClientKey}},
		{"key does not match", mqtt.TLSFiles{CACert: pki.CACert, ClientCert: pki.ClientCert, ClientKey: pki.ServerKey}},
		{"bad version", mqtt.TLSFiles{CACert: pki.CACert, ClientCert: pki.ClientCert, ClientKey: pki.ClientKey, MinVersion: "2.0"}},
		{"max below min", mqtt.TLSFiles{CACert: pki.CACert, ClientCert: pki.ClientCert, ClientKey: pki.ClientKey, MinVersion: "1.3", MaxVersion: "1.2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loader.Load(tt.files)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestTLSLoader_Load_ReadFailure(t *testing.T) {
	// Setup
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ReadFileRaw", "/certs/ca.pem").Return(nil, errors.New("permission denied"))
	loader := mqtt.NewTLSLoader(mockFile)

	// Execute
	_, err := loader.Load(mqtt.TLSFiles{CACert: "/certs/ca.pem", ClientCert: "/certs/device.p12"})

	// Assert
	assert.ErrorContains(t, err, "permission denied")
	mockFile.AssertExpectations(t)
}

func TestTLSLoader_Load_BadPKCS12(t *testing.T) {
	pki, err := mocks.WritePKI(t.TempDir())
	require.NoError(t, err)

	loader := mqtt.NewTLSLoader(file.NewFileService())
	_, err = loader.Load(mqtt.TLSFiles{CACert: pki.CACert, ClientCert: pki.CACert + ".p12"})

	assert.ErrorContains(t, err, "PKCS#12")
}

func TestParseTLSVersion(t *testing.T) {
	tests := map[string]uint16{
		"":        tls.VersionTLS12,
		"1.0":     tls.VersionTLS10,
		"TLSv1.1": tls.VersionTLS11,
		"tls1.2":  tls.VersionTLS12,
		" 1.3 ":   tls.VersionTLS13,
	}
	for in, want := range tests {
		got, err := mqtt.ParseTLSVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := mqtt.ParseTLSVersion("ssl3")
	assert.Error(t, err)
}
