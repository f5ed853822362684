package services

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// DeviceSession is the connection a spawned device publishes through.
// *session.Session satisfies it.
type DeviceSession interface {
	Publisher
	Subscriber
	Connect() error
	Close() error
}

type runningDevice struct {
	session DeviceSession
	device  *DeviceService
}

// DeviceRegistry tracks the devices of a running swarm by tag.
type DeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]runningDevice
	order   []string
	logger  zerolog.Logger
}

// NewDeviceRegistry creates an empty registry.
func NewDeviceRegistry(logger zerolog.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]runningDevice),
		logger:  logger,
	}
}

// Add records a started device. A tag can only be registered once.
func (r *DeviceRegistry) Add(session DeviceSession, device *DeviceService) bool {
	tag := device.Identity().Tag
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[tag]; exists {
		r.logger.Warn().Str("device", tag).Msg("Device is already registered")
		return false
	}
	r.devices[tag] = runningDevice{session: session, device: device}
	r.order = append(r.order, tag)
	return true
}

// Count returns the number of registered devices.
func (r *DeviceRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// StopAll stops every device, then closes its session, in reverse spawn order.
// The registry is empty afterwards.
func (r *DeviceRegistry) StopAll() error {
	r.mu.Lock()
	order := r.order
	devices := r.devices
	r.order = nil
	r.devices = make(map[string]runningDevice)
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := len(order) - 1; i >= 0; i-- {
		running := devices[order[i]]
		wg.Add(1)
		go func() {
			defer wg.Done()
			var deviceErrs []error
			if err := running.device.Stop(); err != nil {
				deviceErrs = append(deviceErrs, err)
			}
			if err := running.session.Close(); err != nil {
				deviceErrs = append(deviceErrs, err)
			}
			if len(deviceErrs) > 0 {
				mu.Lock()
				errs = append(errs, deviceErrs...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	r.logger.Info().Int("devices", len(order)).Msg("All devices stopped")
	return errors.Join(errs...)
}
