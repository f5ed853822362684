package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
)

// Publisher sends telemetry. *session.Session satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, timeout time.Duration) error
}

// Subscriber registers for inbound messages. *session.Session satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, timeout time.Duration, handler paho.MessageHandler) error
}

// DeviceConfig controls how often and how a device publishes.
type DeviceConfig struct {
	Warmup           time.Duration
	MinWait          time.Duration
	MaxWait          time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	QoS              byte
	CloudToDevice    bool
}

// DefaultDeviceConfig returns the standard telemetry cadence.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Warmup:           constants.DefaultWarmup,
		MinWait:          constants.DefaultMinWait,
		MaxWait:          constants.DefaultMaxWait,
		PublishTimeout:   constants.DefaultPublishTimeout,
		SubscribeTimeout: constants.DefaultSubscribeTimeout,
	}
}

// DeviceService is the behaviour of one simulated device: after a warmup it
// publishes a templated telemetry line, then sleeps a random interval, forever.
type DeviceService struct {
	identity  identity.DeviceIdentity
	publisher Publisher
	provider  location.Provider
	cfg       DeviceConfig
	logger    zerolog.Logger

	now       func() time.Time
	randFloat func() float64
	received  atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeviceService initializes a new DeviceService.
func NewDeviceService(id identity.DeviceIdentity, publisher Publisher, provider location.Provider,
	cfg DeviceConfig, logger zerolog.Logger) *DeviceService {

	return &DeviceService{
		identity:  id,
		publisher: publisher,
		provider:  provider,
		cfg:       cfg,
		logger:    logger.With().Str("device", id.Tag).Logger(),
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Identity returns the identity the device publishes as.
func (d *DeviceService) Identity() identity.DeviceIdentity {
	return d.identity
}

// Received returns how many cloud-to-device messages arrived.
func (d *DeviceService) Received() int64 {
	return d.received.Load()
}

// Start launches the publish loop in a separate goroutine.
func (d *DeviceService) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		return errors.New("device service is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.ctx, d.cancel = ctx, cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runPublishLoop(ctx)
	}()
	return nil
}

// Stop cancels the publish loop and waits for it to exit.
func (d *DeviceService) Stop() error {
	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return errors.New("device service is not running")
	}
	cancel := d.cancel
	d.ctx = nil
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	return nil
}

func (d *DeviceService) runPublishLoop(ctx context.Context) {
	if !sleep(ctx, d.cfg.Warmup) {
		return
	}
	d.logger.Info().Msg("Start sending data packets")

	if d.cfg.CloudToDevice {
		d.subscribeCloudToDevice()
	}

	for {
		if err := d.Run(); err != nil {
			d.logger.Debug().Err(err).Msg("Telemetry not sent")
		}
		if !sleep(ctx, d.nextWait()) {
			return
		}
	}
}

// Run performs one telemetry publish.
func (d *DeviceService) Run() error {
	loc, err := d.provider.GetLocation()
	if err != nil {
		return fmt.Errorf("failed to get location: %w", err)
	}

	payload := BuildPayload(d.identity.PayloadTemplate, d.now().UnixMilli(), d.identity.GatewayID, loc.Latitude, loc.Longitude)
	return d.publisher.Publish(d.identity.Topic(), []byte(payload), d.cfg.QoS, d.cfg.PublishTimeout)
}

// nextWait draws uniformly from [MinWait, MaxWait].
func (d *DeviceService) nextWait() time.Duration {
	span := d.cfg.MaxWait - d.cfg.MinWait
	if span <= 0 {
		return d.cfg.MinWait
	}
	return d.cfg.MinWait + time.Duration(d.randFloat()*float64(span))
}

func (d *DeviceService) subscribeCloudToDevice() {
	sub, ok := d.publisher.(Subscriber)
	if !ok {
		return
	}
	topic := fmt.Sprintf(constants.CloudToDeviceTopicFormat, d.identity.Tag)
	if err := sub.Subscribe(topic, d.cfg.QoS, d.cfg.SubscribeTimeout, d.onCloudMessage); err != nil {
		d.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to subscribe to cloud-to-device messages")
	}
}

func (d *DeviceService) onCloudMessage(_ paho.Client, msg paho.Message) {
	d.received.Add(1)
	d.logger.Debug().Str("topic", msg.Topic()).Int("size", len(msg.Payload())).Msg("Cloud-to-device message received")
}

// BuildPayload fills a printf-style template with the epoch milliseconds,
// gateway id, latitude and longitude, in that order.
func BuildPayload(template string, epochMs int64, gatewayID string, lat, lon float64) string {
	return fmt.Sprintf(template, epochMs, gatewayID, lat, lon)
}

// sleep waits for d or until ctx is done; it reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
