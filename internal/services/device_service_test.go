package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/iot-swarm/internal/mocks"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
)

var testIdentity = identity.DeviceIdentity{
	Tag:             "dev-1",
	GatewayID:       "gw1",
	PayloadTemplate: "%d,%s,%f,%f",
	OrgID:           "orgA",
}

func fastDeviceConfig() DeviceConfig {
	cfg := DefaultDeviceConfig()
	cfg.Warmup = 0
	cfg.MinWait = 5 * time.Millisecond
	cfg.MaxWait = 5 * time.Millisecond
	return cfg
}

func TestBuildPayload(t *testing.T) {
	got := BuildPayload("%d,%s,%f,%f", 1700000000000, "gw1", 39.93, -105.2221)
	assert.Equal(t, "1700000000000,gw1,39.930000,-105.222100", got)
}

func TestDeviceService_Run(t *testing.T) {
	// Setup
	sess := &fakeSession{}
	provider := location.NewJitterProvider(location.DefaultBase, sequence(0.2, 0.3))
	device := NewDeviceService(testIdentity, sess, provider, DefaultDeviceConfig(), zerolog.Nop())
	device.now = func() time.Time { return time.UnixMilli(1700000000000) }

	// Execute
	require.NoError(t, device.Run())

	// Assert
	calls := sess.Published()
	require.Len(t, calls, 1)
	assert.Equal(t, "devices/dev-1/messages/events/", calls[0].Topic)
	assert.Equal(t, "1700000000000,gw1,39.930000,-105.222100", calls[0].Payload)
	assert.Equal(t, byte(0), calls[0].QoS)
	assert.Equal(t, 10*time.Second, calls[0].Timeout)
}

func TestDeviceService_RunLocationError(t *testing.T) {
	sess := &fakeSession{}
	device := NewDeviceService(testIdentity, sess, failingProvider{}, DefaultDeviceConfig(), zerolog.Nop())

	err := device.Run()

	assert.ErrorContains(t, err, "failed to get location")
	assert.Empty(t, sess.Published())
}

func TestDeviceService_NextWait(t *testing.T) {
	device := NewDeviceService(testIdentity, &fakeSession{}, nil, DefaultDeviceConfig(), zerolog.Nop())

	device.randFloat = func() float64 { return 0 }
	assert.Equal(t, 29*time.Second, device.nextWait())

	device.randFloat = func() float64 { return 0.5 }
	assert.Equal(t, 30*time.Second, device.nextWait())

	device.cfg.MaxWait = device.cfg.MinWait
	assert.Equal(t, 29*time.Second, device.nextWait())
}

func TestDeviceService_StartStop(t *testing.T) {
	// Setup
	sess := &fakeSession{}
	provider := location.NewJitterProvider(location.DefaultBase, nil)
	device := NewDeviceService(testIdentity, sess, provider, fastDeviceConfig(), zerolog.Nop())

	// Execute
	require.NoError(t, device.Start())
	assert.EqualError(t, device.Start(), "device service is already running")

	// Assert
	assert.Eventually(t, func() bool { return len(sess.Published()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, device.Stop())
	assert.EqualError(t, device.Stop(), "device service is not running")

	n := len(sess.Published())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sess.Published(), n, "no publish after Stop")
}

func TestDeviceService_StopDuringWarmup(t *testing.T) {
	sess := &fakeSession{}
	cfg := fastDeviceConfig()
	cfg.Warmup = time.Hour
	device := NewDeviceService(testIdentity, sess, location.NewJitterProvider(location.DefaultBase, nil), cfg, zerolog.Nop())

	require.NoError(t, device.Start())
	require.NoError(t, device.Stop())

	assert.Empty(t, sess.Published())
}

func TestDeviceService_StartStopImmediately(t *testing.T) {
	cfg := fastDeviceConfig()
	cfg.Warmup = time.Hour
	provider := location.NewJitterProvider(location.DefaultBase, nil)

	for i := 0; i < 500; i++ {
		device := NewDeviceService(testIdentity, &fakeSession{}, provider, cfg, zerolog.Nop())
		require.NoError(t, device.Start())
		require.NoError(t, device.Stop())
	}

	device := NewDeviceService(testIdentity, &fakeSession{}, provider, cfg, zerolog.Nop())
	for i := 0; i < 100; i++ {
		require.NoError(t, device.Start())
		require.NoError(t, device.Stop())
	}
}

func TestDeviceService_PublishFailureKeepsRunning(t *testing.T) {
	sess := &fakeSession{publishErr: assert.AnError}
	device := NewDeviceService(testIdentity, sess, location.NewJitterProvider(location.DefaultBase, nil), fastDeviceConfig(), zerolog.Nop())

	require.NoError(t, device.Start())
	defer device.Stop()

	assert.Eventually(t, func() bool { return len(sess.Published()) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestDeviceService_CloudToDevice(t *testing.T) {
	// Setup
	sess := &fakeSession{}
	cfg := fastDeviceConfig()
	cfg.CloudToDevice = true
	device := NewDeviceService(testIdentity, sess, location.NewJitterProvider(location.DefaultBase, nil), cfg, zerolog.Nop())

	// Execute
	require.NoError(t, device.Start())
	defer device.Stop()
	require.Eventually(t, func() bool { return sess.Handler() != nil }, 2*time.Second, 5*time.Millisecond)
	sess.Handler()(nil, mocks.NewMockMessage("devices/dev-1/messages/devicebound/%24.to=x", []byte("hello")))

	// Assert
	assert.Equal(t, []string{"devices/dev-1/messages/devicebound/#"}, sess.Subscribed())
	assert.Equal(t, int64(1), device.Received())
}
