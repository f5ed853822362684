package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/utils"
	"github.com/benmeehan/iot-swarm/pkg/assets"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
)

// SessionFactory builds the connection for a newly acquired identity.
type SessionFactory func(id identity.DeviceIdentity) DeviceSession

// ProviderFactory builds the location source for the n-th spawned device.
type ProviderFactory func(n int) location.Provider

// SwarmConfig controls how many devices are spawned and how fast.
type SwarmConfig struct {
	Devices      int     // 0 spawns until the pool is exhausted
	SpawnRate    float64 // devices per second
	SpawnWorkers int
}

// SwarmService acquires identities from the pool and spawns one connected
// DeviceService per identity at a bounded rate.
type SwarmService struct {
	pool        *assets.Pool
	newSession  SessionFactory
	newProvider ProviderFactory
	deviceCfg   DeviceConfig
	cfg         SwarmConfig
	registry    *DeviceRegistry
	logger      zerolog.Logger

	workerPool *utils.WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewSwarmService initializes a new SwarmService.
func NewSwarmService(pool *assets.Pool, newSession SessionFactory, newProvider ProviderFactory,
	deviceCfg DeviceConfig, cfg SwarmConfig, logger zerolog.Logger) *SwarmService {

	return &SwarmService{
		pool:        pool,
		newSession:  newSession,
		newProvider: newProvider,
		deviceCfg:   deviceCfg,
		cfg:         cfg,
		registry:    NewDeviceRegistry(logger),
		logger:      logger,
	}
}

// Start begins spawning devices in the background. Asking for more devices
// than the pool holds fails with assets.ErrPoolExhausted.
func (s *SwarmService) Start() error {
	if s.ctx != nil {
		return errors.New("swarm service is already running")
	}
	if s.cfg.SpawnRate <= 0 {
		return errors.New("spawn rate must be positive")
	}
	if available := s.pool.Remaining(); s.cfg.Devices > available {
		return fmt.Errorf("%w: %d devices requested, %d identities available",
			assets.ErrPoolExhausted, s.cfg.Devices, available)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.workerPool = utils.NewWorkerPool(s.cfg.SpawnWorkers)
	s.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.runSpawnLoop()
	}()

	s.logger.Info().
		Int("devices", s.cfg.Devices).
		Int("pool", s.pool.Remaining()).
		Float64("spawn_rate", s.cfg.SpawnRate).
		Msg("SwarmService started")
	return nil
}

// Stop halts spawning, waits for in-flight spawns and tears every device down.
func (s *SwarmService) Stop() error {
	if s.ctx == nil {
		return errors.New("swarm service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.workerPool.Shutdown()
	err := s.registry.StopAll()

	s.ctx = nil
	s.cancel = nil
	s.logger.Info().Msg("SwarmService stopped")
	return err
}

// Spawned returns the number of running devices.
func (s *SwarmService) Spawned() int {
	return s.registry.Count()
}

// Done is closed once spawning has finished, either because the target was
// reached, the pool ran dry or the service stopped.
func (s *SwarmService) Done() <-chan struct{} {
	return s.done
}

func (s *SwarmService) runSpawnLoop() {
	interval := time.Duration(float64(time.Second) / s.cfg.SpawnRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; s.cfg.Devices == 0 || n < s.cfg.Devices; n++ {
		id, err := s.pool.Acquire()
		if errors.Is(err, assets.ErrPoolExhausted) {
			s.logger.Info().Int("spawned", n).Msg("Asset pool exhausted")
			return
		}

		if err := s.workerPool.SubmitContext(s.ctx, func() { s.spawn(n, id) }); err != nil {
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SwarmService) spawn(n int, id identity.DeviceIdentity) {
	if s.ctx.Err() != nil {
		return
	}
	logger := s.logger.With().Str("device", id.Tag).Logger()
	logger.Info().Str("gateway", id.GatewayID).Str("org", id.OrgID).Msg("Asset spawned")

	sess := s.newSession(id)
	if err := sess.Connect(); err != nil {
		logger.Error().Err(err).Msg("Device could not connect")
		_ = sess.Close()
		return
	}

	device := NewDeviceService(id, sess, s.newProvider(n), s.deviceCfg, s.logger)
	if err := device.Start(); err != nil {
		logger.Error().Err(err).Msg("Device could not start")
		_ = sess.Close()
		return
	}
	if !s.registry.Add(sess, device) {
		_ = device.Stop()
		_ = sess.Close()
	}
}
