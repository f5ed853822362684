package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/metrics_collectors"
	"github.com/benmeehan/iot-swarm/internal/models"
	"github.com/benmeehan/iot-swarm/internal/utils"
)

// HostMonitorService samples the load generator host while the swarm runs.
type HostMonitorService struct {
	config     *models.HostMetricsConfig
	interval   time.Duration
	timeout    time.Duration
	logger     zerolog.Logger
	registry   *metrics_collectors.MetricsRegistry
	workerPool *utils.WorkerPool

	latestMu sync.RWMutex
	latest   *models.SystemMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHostMonitorService initializes and returns a new instance of HostMonitorService.
func NewHostMonitorService(
	collectors []string,
	interval, timeout time.Duration,
	registry *metrics_collectors.MetricsRegistry,
	logger zerolog.Logger,
) *HostMonitorService {
	return &HostMonitorService{
		config:   &models.HostMetricsConfig{Collectors: utils.SliceToSet(collectors)},
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		registry: registry,
	}
}

// Start initiates periodic metrics collection.
func (m *HostMonitorService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("HostMonitorService is already running")
		return errors.New("host monitor service is already running")
	}

	if err := m.validate(); err != nil {
		m.logger.Error().Err(err).Msg("Invalid host monitor configuration")
		return err
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.workerPool = utils.NewWorkerPool(len(m.config.Collectors))
	m.wg.Add(1)
	go m.runMetricsCollectionLoop()

	m.logger.Info().Dur("interval", m.interval).Msg("HostMonitorService started successfully")
	return nil
}

// validate checks that every requested collector exists.
func (m *HostMonitorService) validate() error {
	if len(m.config.Collectors) == 0 {
		return errors.New("no host collectors enabled in configuration")
	}
	if m.interval <= 0 {
		return errors.New("host monitor interval must be positive")
	}
	available := m.registry.GetCollectors()
	for name := range m.config.Collectors {
		if _, ok := available[name]; !ok {
			return fmt.Errorf("unknown host collector %q", name)
		}
	}
	return nil
}

// runMetricsCollectionLoop runs the main metrics collection loop.
func (m *HostMonitorService) runMetricsCollectionLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := m.Collect(m.ctx)
			m.latestMu.Lock()
			m.latest = metrics
			m.latestMu.Unlock()
		case <-m.ctx.Done():
			m.logger.Info().Msg("Stopping host metrics collection")
			return
		}
	}
}

// Collect gathers every enabled metric concurrently.
func (m *HostMonitorService) Collect(parent context.Context) *models.SystemMetrics {
	metrics := &models.SystemMetrics{
		Timestamp: time.Now().UTC(),
		Metrics:   make(map[string]models.Metric),
	}

	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	var metricsMutex sync.Mutex

	for name, collector := range m.registry.GetCollectors() {
		if !collector.IsEnabled(m.config) {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			value := collector.Collect(ctx)
			if value == nil {
				return
			}

			metricsMutex.Lock()
			defer metricsMutex.Unlock()
			metrics.Metrics[name] = models.Metric{
				Value: value,
				Unit:  collector.Unit(),
			}
		}
		if m.workerPool == nil {
			task()
			continue
		}
		if err := m.workerPool.SubmitContext(ctx, task); err != nil {
			wg.Done()
		}
	}

	wg.Wait()
	m.logger.Info().Interface("metrics", metrics.Metrics).Msg("Host metrics collected")
	return metrics
}

// Latest returns the most recent sample, or nil before the first tick.
func (m *HostMonitorService) Latest() *models.SystemMetrics {
	m.latestMu.RLock()
	defer m.latestMu.RUnlock()
	return m.latest
}

// Stop gracefully stops the host monitor.
func (m *HostMonitorService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("HostMonitorService is not running")
		return errors.New("host monitor service is not running")
	}

	m.cancel()
	m.wg.Wait()
	m.workerPool.Shutdown()
	m.ctx = nil
	m.logger.Info().Msg("HostMonitorService stopped successfully")
	return nil
}
