package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/iot-swarm/pkg/assets"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
)

type sessionRecorder struct {
	mu         sync.Mutex
	sessions   map[string]*fakeSession
	connectErr error
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{sessions: make(map[string]*fakeSession)}
}

func (r *sessionRecorder) factory(id identity.DeviceIdentity) DeviceSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeSession{connectErr: r.connectErr}
	r.sessions[id.Tag] = s
	return s
}

func (r *sessionRecorder) all() map[string]*fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*fakeSession, len(r.sessions))
	for k, v := range r.sessions {
		out[k] = v
	}
	return out
}

func testPool(n int) *assets.Pool {
	ids := make([]identity.DeviceIdentity, n)
	for i := range ids {
		ids[i] = identity.DeviceIdentity{
			Tag:             fmt.Sprintf("dev-%d", i),
			GatewayID:       fmt.Sprintf("gw-%d", i),
			PayloadTemplate: "%d,%s,%f,%f",
		}
	}
	return assets.NewPool(ids)
}

func jitterFactory(int) location.Provider {
	return location.NewJitterProvider(location.DefaultBase, nil)
}

func idleDeviceConfig() DeviceConfig {
	cfg := DefaultDeviceConfig()
	cfg.Warmup = time.Hour
	return cfg
}

func waitDone(t *testing.T, s *SwarmService) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("spawning did not finish")
	}
}

func TestSwarmService_SpawnsRequestedDevices(t *testing.T) {
	// Setup
	pool := testPool(3)
	rec := newSessionRecorder()
	swarm := NewSwarmService(pool, rec.factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{Devices: 2, SpawnRate: 1000, SpawnWorkers: 2}, zerolog.Nop())

	// Execute
	require.NoError(t, swarm.Start())
	waitDone(t, swarm)

	// Assert
	assert.Eventually(t, func() bool { return swarm.Spawned() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, pool.Remaining())

	require.NoError(t, swarm.Stop())
	assert.Equal(t, 0, swarm.Spawned())
	sessions := rec.all()
	assert.Len(t, sessions, 2)
	for tag, s := range sessions {
		connects, closes := s.Counts()
		assert.Equal(t, 1, connects, tag)
		assert.Equal(t, 1, closes, tag)
	}
}

func TestSwarmService_StopsWhenPoolExhausted(t *testing.T) {
	pool := testPool(2)
	rec := newSessionRecorder()
	swarm := NewSwarmService(pool, rec.factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{SpawnRate: 1000, SpawnWorkers: 4}, zerolog.Nop())

	require.NoError(t, swarm.Start())
	waitDone(t, swarm)

	assert.Eventually(t, func() bool { return swarm.Spawned() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, pool.Remaining())
	require.NoError(t, swarm.Stop())
}

func TestSwarmService_RejectsMoreDevicesThanPool(t *testing.T) {
	// Setup
	pool := testPool(2)
	rec := newSessionRecorder()
	swarm := NewSwarmService(pool, rec.factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{Devices: 5, SpawnRate: 1000, SpawnWorkers: 2}, zerolog.Nop())

	// Execute
	err := swarm.Start()

	// Assert
	assert.ErrorIs(t, err, assets.ErrPoolExhausted)
	assert.Equal(t, 2, pool.Remaining(), "no identity is consumed")
	assert.Empty(t, rec.all())
	assert.EqualError(t, swarm.Stop(), "swarm service is not running")
}

func TestSwarmService_ConnectFailure(t *testing.T) {
	pool := testPool(1)
	rec := newSessionRecorder()
	rec.connectErr = assert.AnError
	swarm := NewSwarmService(pool, rec.factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{Devices: 1, SpawnRate: 1000, SpawnWorkers: 1}, zerolog.Nop())

	require.NoError(t, swarm.Start())
	waitDone(t, swarm)

	assert.Eventually(t, func() bool {
		s, ok := rec.all()["dev-0"]
		if !ok {
			return false
		}
		_, closes := s.Counts()
		return closes == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, swarm.Spawned())
	require.NoError(t, swarm.Stop())
}

func TestSwarmService_Lifecycle(t *testing.T) {
	swarm := NewSwarmService(testPool(0), newSessionRecorder().factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{SpawnRate: 0}, zerolog.Nop())
	assert.EqualError(t, swarm.Start(), "spawn rate must be positive")
	assert.EqualError(t, swarm.Stop(), "swarm service is not running")

	swarm = NewSwarmService(testPool(0), newSessionRecorder().factory, jitterFactory, idleDeviceConfig(),
		SwarmConfig{SpawnRate: 10}, zerolog.Nop())
	require.NoError(t, swarm.Start())
	assert.EqualError(t, swarm.Start(), "swarm service is already running")
	require.NoError(t, swarm.Stop())
}

func TestDeviceRegistry(t *testing.T) {
	registry := NewDeviceRegistry(zerolog.Nop())
	sess := &fakeSession{}
	device := NewDeviceService(testIdentity, sess, nil, idleDeviceConfig(), zerolog.Nop())
	require.NoError(t, device.Start())

	assert.True(t, registry.Add(sess, device))
	assert.False(t, registry.Add(sess, device), "tag registered twice")
	assert.Equal(t, 1, registry.Count())

	require.NoError(t, registry.StopAll())
	assert.Equal(t, 0, registry.Count())
	_, closes := sess.Counts()
	assert.Equal(t, 1, closes)

	// a device that was never started reports its stop error
	registry.Add(sess, NewDeviceService(testIdentity, sess, nil, idleDeviceConfig(), zerolog.Nop()))
	assert.ErrorContains(t, registry.StopAll(), "device service is not running")
}
