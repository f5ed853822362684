// Package session runs one simulated device's MQTT connection: it connects over
// mutual TLS, reconnects on loss, and turns fire-and-forget publish and subscribe
// calls into latency and failure measurements.
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/metrics"
	"github.com/benmeehan/iot-swarm/pkg/mqtt"
)

// Operation names reported to the metrics sink.
const (
	OpConnect      = "connect"
	OpDisconnect   = "disconnect"
	OpPublish      = "publish"
	OpSubscribe    = "subscribe"
	OpMessageFound = "message_found"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultSweepInterval  = time.Second
	defaultSweepGrace     = 5 * time.Second
	disconnectQuiesce     = 250
	subscribeFailure      = 0x80
)

// State is the connection state of a session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// ReconnectPolicy bounds connection attempts. MaxAttempts of 0 retries forever.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the wait before the attempt following attempt n: linear backoff
// capped at MaxDelay, plus up to 10% jitter.
func (p ReconnectPolicy) Delay(n int, jitter func(int64) int64) time.Duration {
	d := p.BaseDelay * time.Duration(n)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if spread := int64(d / 10); spread > 0 && jitter != nil {
		d += time.Duration(jitter(spread))
	}
	return d
}

// Config describes one device connection.
type Config struct {
	// Broker is "host[:port]"; the port defaults to 8883.
	Broker         string
	DeviceID       string
	TLS            mqtt.TLSFiles
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Reconnect      ReconnectPolicy
	SweepInterval  time.Duration
	SweepGrace     time.Duration
}

// TLSLoader turns certificate files into a TLS config.
type TLSLoader interface {
	Load(files mqtt.TLSFiles) (*tls.Config, error)
}

// Option customises a Session.
type Option func(*Session)

// WithDialer replaces the paho dialer.
func WithDialer(d mqtt.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithClock replaces time.Now for submission and acknowledgement timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTLSLoader replaces the file based TLS loader.
func WithTLSLoader(l TLSLoader) Option {
	return func(s *Session) { s.tlsLoader = l }
}

// Session is a single device's MQTT connection.
type Session struct {
	cfg       Config
	sink      metrics.Sink
	logger    zerolog.Logger
	dialer    mqtt.Dialer
	tlsLoader TLSLoader
	now       func() time.Time
	jitter    func(int64) int64

	mu      sync.Mutex
	client  mqtt.MQTTClient
	started bool

	state      atomic.Int32
	publishes  *PendingTable
	subscribes *PendingTable
	reconnect  chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a disconnected session. Nothing touches the network until Connect.
func New(cfg Config, sink metrics.Sink, logger zerolog.Logger, opts ...Option) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.SweepGrace <= 0 {
		cfg.SweepGrace = defaultSweepGrace
	}
	if sink == nil {
		sink = metrics.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:        cfg,
		sink:       sink,
		logger:     logger.With().Str("device", cfg.DeviceID).Logger(),
		dialer:     mqtt.NewPahoDialer(),
		tlsLoader:  mqtt.NewTLSLoader(file.NewFileService()),
		now:        time.Now,
		jitter:     rand.Int63n,
		publishes:  NewPendingTable(),
		subscribes: NewPendingTable(),
		reconnect:  make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeviceID returns the client id the session connects with.
func (s *Session) DeviceID() string {
	return s.cfg.DeviceID
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Pending returns the number of unacknowledged publishes and subscribes.
func (s *Session) Pending() (publishes, subscribes int) {
	return s.publishes.Len(), s.subscribes.Len()
}

// setState moves to next unless the session is closed.
func (s *Session) setState(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// Connect loads the TLS material, builds the client and starts connecting in
// the background. It returns once the connection attempt has been scheduled.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	start := s.now()
	tlsConfig, err := s.tlsLoader.Load(s.cfg.TLS)
	if err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrConnect, err)
		s.fail(OpConnect, s.now().Sub(start), metrics.KindConnect, err)
		s.logger.Error().Err(err).Msg("Failed to load TLS material")
		return err
	}

	host, _ := mqtt.SplitHostPort(s.cfg.Broker)
	client, err := s.dialer.NewClient(mqtt.ClientConfig{
		BrokerURL:      mqtt.BrokerURL(s.cfg.Broker),
		ClientID:       s.cfg.DeviceID,
		Username:       host + "/" + s.cfg.DeviceID,
		TLS:            tlsConfig,
		KeepAlive:      s.cfg.KeepAlive,
		ConnectTimeout: s.cfg.ConnectTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
	}, mqtt.Callbacks{
		OnConnect:        s.onConnect,
		OnConnectionLost: s.onConnectionLost,
	})
	if err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrConnect, err)
		s.fail(OpConnect, s.now().Sub(start), metrics.KindConnect, err)
		s.logger.Error().Err(err).Msg("Failed to create MQTT client")
		return err
	}
	s.client = client
	s.started = true
	s.mu.Unlock()

	s.logger.Info().Str("broker", s.cfg.Broker).Msg("Establishing MQTT client connection")

	s.wg.Add(2)
	go s.supervise()
	go s.sweepLoop()
	return nil
}

// supervise connects, then waits for a lost connection and connects again.
func (s *Session) supervise() {
	defer s.wg.Done()
	for {
		if !s.connectWithRetry() {
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.reconnect:
			s.logger.Info().Msg("Reconnecting")
		}
	}
}

func (s *Session) connectWithRetry() bool {
	policy := s.cfg.Reconnect
	for attempt := 1; ; attempt++ {
		if s.ctx.Err() != nil || !s.setState(StateConnecting) {
			return false
		}

		start := s.now()
		err := s.connectOnce()
		if err == nil {
			if s.setState(StateConnected) {
				s.logger.Info().Msg("Device connected")
				s.succeed(OpConnect, 0, 0)
			}
			return true
		}
		s.fail(OpConnect, s.now().Sub(start), metrics.KindConnect, err)

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			s.logger.Error().Err(err).Int("attempts", attempt).Msg("Giving up on broker connection")
			s.state.Store(int32(StateClosed))
			return false
		}
		s.setState(StateDisconnected)

		delay := policy.Delay(attempt, s.jitter)
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Connection attempt failed")
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// connectOnce waits for the connect token without watching the context, so
// Close never races an attempt that is still completing. An attempt that times
// out is aborted before returning, so attempts never overlap.
func (s *Session) connectOnce() error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	token := client.Connect()
	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrConnect, err)
		}
		return nil
	case <-timer.C:
		client.Disconnect(0)
		return fmt.Errorf("%w: no CONNACK after %s", ErrConnect, s.cfg.ConnectTimeout)
	}
}

// onConnect only logs. paho may run it after the connect token completes, so
// the state change and the zero-latency connect event belong to connectWithRetry.
func (s *Session) onConnect() {
	s.logger.Debug().Str("state", s.State().String()).Msg("CONNACK received")
}

func (s *Session) onConnectionLost(err error) {
	if s.State() == StateClosed {
		return
	}
	if err == nil {
		err = ErrDisconnected
	} else {
		err = fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	s.logger.Warn().Err(err).Msg("Device disconnected")
	s.fail(OpDisconnect, 0, metrics.KindDisconnect, err)

	if !s.setState(StateDisconnected) {
		return
	}
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

func (s *Session) connectedClient() (mqtt.MQTTClient, error) {
	switch s.State() {
	case StateConnected:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Publish submits payload to topic at QoS 0 and tracks its acknowledgement.
// A nil error means the message is in flight, not that it was delivered.
func (s *Session) Publish(topic string, payload []byte, qos byte, timeout time.Duration) error {
	start := s.now()
	if qos != 0 {
		err := fmt.Errorf("%w: %d", ErrUnsupportedQoS, qos)
		s.fail(OpPublish, 0, metrics.KindSubmit, err)
		return err
	}

	client, err := s.connectedClient()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpPublish, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	token := client.Publish(topic, qos, false, payload)
	if err := completedWithError(token); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpPublish, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	msg := &PendingMessage{
		Kind:        KindPublish,
		QoS:         qos,
		Topic:       topic,
		Payload:     payload,
		SubmittedAt: start,
		Timeout:     timeout,
		Label:       OpPublish,
	}
	id, err := s.publishes.Add(msg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpPublish, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	go s.await(token, msg, func(at time.Time) {
		s.onPublishAcknowledged(id, at)
	}, func() (*PendingMessage, bool) {
		return s.publishes.Pop(id)
	})
	return nil
}

// Subscribe submits a subscription to topic at QoS 0 and tracks its SUBACK.
func (s *Session) Subscribe(topic string, qos byte, timeout time.Duration, handler paho.MessageHandler) error {
	start := s.now()
	if qos != 0 {
		err := fmt.Errorf("%w: %d", ErrUnsupportedQoS, qos)
		s.fail(OpSubscribe, 0, metrics.KindSubmit, err)
		return err
	}

	client, err := s.connectedClient()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpSubscribe, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	token := client.Subscribe(topic, qos, handler)
	if err := completedWithError(token); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpSubscribe, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	msg := &PendingMessage{
		Kind:        KindSubscribe,
		QoS:         qos,
		Topic:       topic,
		SubmittedAt: start,
		Timeout:     timeout,
		Label:       OpSubscribe,
	}
	id, err := s.subscribes.Add(msg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmit, err)
		s.fail(OpSubscribe, s.now().Sub(start), metrics.KindSubmit, err)
		return err
	}

	go s.await(token, msg, func(at time.Time) {
		s.onSubscribeAcknowledged(id, grantedQoS(token, topic), at)
	}, func() (*PendingMessage, bool) {
		return s.subscribes.Pop(id)
	})
	return nil
}

// await turns a token into an acknowledgement. A token that never completes is
// abandoned at the sweep deadline and left to the sweeper.
func (s *Session) await(token paho.Token, msg *PendingMessage, ack func(at time.Time), pop func() (*PendingMessage, bool)) {
	timer := time.NewTimer(msg.Timeout + s.cfg.SweepGrace)
	defer timer.Stop()

	select {
	case <-token.Done():
		at := s.now()
		if err := token.Error(); err != nil {
			if m, ok := pop(); ok {
				s.fail(m.Label, at.Sub(m.SubmittedAt), metrics.KindGeneric, fmt.Errorf("%w: %w", ErrDelivery, err))
			}
			return
		}
		ack(at)
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

func (s *Session) onPublishAcknowledged(id uint16, at time.Time) {
	msg, ok := s.publishes.Pop(id)
	if !ok {
		s.logger.Warn().Uint16("mid", id).Msg("Published message could not be found")
		s.fail(OpMessageFound, 0, metrics.KindNotFound, fmt.Errorf("%w: publish %d", ErrAckNotFound, id))
		return
	}

	elapsed := at.Sub(msg.SubmittedAt)
	if msg.TimedOut(elapsed) {
		s.fail(msg.Label, elapsed, metrics.KindTimeout, fmt.Errorf("%w: publish acknowledged after %s", ErrTimeout, elapsed))
		return
	}
	s.succeed(msg.Label, elapsed, len(msg.Payload))
}

func (s *Session) onSubscribeAcknowledged(id uint16, granted byte, at time.Time) {
	msg, ok := s.subscribes.Pop(id)
	if !ok {
		s.logger.Warn().Uint16("mid", id).Msg("Subscribed message could not be found")
		s.fail(OpMessageFound, 0, metrics.KindNotFound, fmt.Errorf("%w: subscribe %d", ErrAckNotFound, id))
		return
	}

	elapsed := at.Sub(msg.SubmittedAt)
	switch {
	case granted == subscribeFailure:
		s.fail(msg.Label, elapsed, metrics.KindGeneric, fmt.Errorf("%w: broker rejected subscription to %s", ErrDelivery, msg.Topic))
	case msg.TimedOut(elapsed):
		s.fail(msg.Label, elapsed, metrics.KindTimeout, fmt.Errorf("%w: subscribe acknowledged after %s", ErrTimeout, elapsed))
	default:
		s.succeed(msg.Label, elapsed, 0)
	}
}

func (s *Session) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep(s.now())
		}
	}
}

// sweep expires entries whose acknowledgement never arrived.
func (s *Session) sweep(now time.Time) int {
	n := 0
	for _, table := range []*PendingTable{s.publishes, s.subscribes} {
		for _, exp := range table.Expire(now, s.cfg.SweepGrace) {
			elapsed := now.Sub(exp.Message.SubmittedAt)
			s.fail(exp.Message.Label, elapsed, metrics.KindTimeout,
				fmt.Errorf("%w: no acknowledgement for %s %d after %s", ErrTimeout, exp.Message.Kind, exp.ID, elapsed))
			n++
		}
	}
	if n > 0 {
		s.logger.Debug().Int("expired", n).Msg("Swept unacknowledged messages")
	}
	return n
}

// Close stops reconnecting, disconnects and waits for the session goroutines.
// Clean teardown is silent: no disconnect event reaches the sink, and a
// connection-lost callback arriving after Close is ignored.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client != nil {
			client.Disconnect(disconnectQuiesce)
		}
		s.logger.Info().Msg("Session closed")
	})
	return nil
}

func (s *Session) succeed(name string, elapsed time.Duration, size int) {
	s.sink.RecordSuccess(metrics.Event{
		RequestType: metrics.RequestType,
		Name:        name,
		DeviceID:    s.cfg.DeviceID,
		Elapsed:     elapsed,
		Success:     true,
		PayloadSize: size,
	})
}

func (s *Session) fail(name string, elapsed time.Duration, kind metrics.ErrorKind, err error) {
	s.sink.RecordFailure(metrics.Event{
		RequestType: metrics.RequestType,
		Name:        name,
		DeviceID:    s.cfg.DeviceID,
		Elapsed:     elapsed,
		Kind:        kind,
		Err:         err,
	})
}

func completedWithError(token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

func grantedQoS(token paho.Token, topic string) byte {
	st, ok := token.(interface{ Result() map[string]byte })
	if !ok {
		return 0
	}
	return st.Result()[topic]
}
