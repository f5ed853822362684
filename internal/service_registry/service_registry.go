package service_registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/internal/metrics_collectors"
	"github.com/benmeehan/iot-swarm/internal/registry"
	"github.com/benmeehan/iot-swarm/internal/services"
	"github.com/benmeehan/iot-swarm/internal/utils"
	"github.com/benmeehan/iot-swarm/pkg/assets"
	"github.com/benmeehan/iot-swarm/pkg/metrics"
)

// Dependencies are the shared objects the harness services are built from.
type Dependencies struct {
	Pool        *assets.Pool
	NewSession  services.SessionFactory
	NewProvider services.ProviderFactory
	Stats       *metrics.StatsSink
}

// ServiceRegistry manages the lifecycle of the harness services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes an empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]registry.Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Service returns a registered service by name.
func (sr *ServiceRegistry) Service(name string) (registry.Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds and registers the enabled services from configuration.
// The swarm always runs; host monitoring and stats reporting are optional.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	var swarm *services.SwarmService

	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    constants.ServiceSwarm,
			enabled: true,
			constructor: func() (registry.Service, error) {
				if deps.Pool == nil || deps.NewSession == nil || deps.NewProvider == nil {
					return nil, errors.New("swarm requires a pool, a session factory and a location factory")
				}
				swarm = services.NewSwarmService(
					deps.Pool,
					deps.NewSession,
					deps.NewProvider,
					DeviceConfig(config),
					services.SwarmConfig{
						Devices:      config.Swarm.Devices,
						SpawnRate:    config.Swarm.SpawnRate,
						SpawnWorkers: config.Swarm.SpawnWorkers,
					},
					sr.Logger,
				)
				return swarm, nil
			},
		},
		{
			name:    constants.ServiceHostMonitor,
			enabled: config.Host.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewHostMonitorService(
					config.Host.Collectors,
					config.Host.Interval,
					config.Host.Timeout,
					metrics_collectors.NewDefaultRegistry(sr.Logger),
					sr.Logger,
				), nil
			},
		},
		{
			name:    constants.ServiceStatsReporter,
			enabled: deps.Stats != nil && config.Metrics.ReportInterval > 0,
			constructor: func() (registry.Service, error) {
				return services.NewStatsReporterService(
					deps.Stats,
					config.Metrics.ReportInterval,
					swarm.Spawned,
					sr.Logger,
				), nil
			},
		},
	}

	for _, s := range servicesInOrder {
		if !s.enabled {
			sr.Logger.Info().Msgf("Service %s is disabled", s.name)
			continue
		}
		svc, err := s.constructor()
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
		sr.RegisterService(s.name, svc)
	}
	return nil
}

// DeviceConfig maps configuration onto device behaviour settings.
func DeviceConfig(config *utils.Config) services.DeviceConfig {
	return services.DeviceConfig{
		Warmup:           config.Device.Warmup,
		MinWait:          config.Device.MinWait,
		MaxWait:          config.Device.MaxWait,
		PublishTimeout:   config.Device.PublishTimeout,
		SubscribeTimeout: config.Device.SubscribeTimeout,
		CloudToDevice:    config.Device.CloudToDevice,
	}
}
