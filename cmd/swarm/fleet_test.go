package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/internal/mocks"
	"github.com/benmeehan/iot-swarm/internal/utils"
	"github.com/benmeehan/iot-swarm/pkg/assets"
	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
)

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = parseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDuration("soon")
	assert.ErrorIs(t, err, utils.ErrInvalidConfig)
}

func TestProviderFactory(t *testing.T) {
	cfg := &utils.Config{}
	cfg.Location.Provider = constants.LocationJitter
	factory, err := providerFactory(cfg, file.NewFileService())
	require.NoError(t, err)
	assert.IsType(t, &location.JitterProvider{}, factory(0))

	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "track.nmea").Return([]byte(
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"), nil)
	cfg.Location.Provider = constants.LocationNMEA
	cfg.Location.TrackFile = "track.nmea"
	factory, err = providerFactory(cfg, fileClient)
	require.NoError(t, err)
	assert.IsType(t, &location.NMEATrackProvider{}, factory(3))

	cfg.Location.Provider = "gps"
	_, err = providerFactory(cfg, fileClient)
	assert.Error(t, err)
}

func TestLoadTLS_Error(t *testing.T) {
	cfg := &utils.Config{}
	cfg.TLS.CACert = "missing-ca.pem"
	cfg.TLS.ClientCert = "missing.pem"
	cfg.TLS.ClientKey = "missing.key"

	_, err := loadTLS(cfg, file.NewFileService())

	assert.Error(t, err)
}

func TestCheckPoolSize(t *testing.T) {
	pool := assets.NewPool([]identity.DeviceIdentity{{Tag: "dev-1"}, {Tag: "dev-2"}})
	cfg := &utils.Config{}

	cfg.Swarm.Devices = 0
	assert.NoError(t, checkPoolSize(cfg, pool))

	cfg.Swarm.Devices = 2
	assert.NoError(t, checkPoolSize(cfg, pool))

	cfg.Swarm.Devices = 5
	assert.ErrorIs(t, checkPoolSize(cfg, pool), assets.ErrPoolExhausted)
}
