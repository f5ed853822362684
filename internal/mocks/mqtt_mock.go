package mocks

import (
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/iot-swarm/pkg/mqtt"
)

// MockMQTTClient is a mock implementation of the MQTTClient interface
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Connect() paho.Token {
	args := m.Called()
	return args.Get(0).(paho.Token)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(paho.Token)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(paho.Token)
}

func (m *MockMQTTClient) Unsubscribe(topics ...string) paho.Token {
	args := m.Called(topics)
	return args.Get(0).(paho.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockMQTTClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

// FakeDialer hands out a fixed client and keeps the callbacks it was given, so
// tests can drive connection events by hand.
type FakeDialer struct {
	Client mqtt.MQTTClient
	Err    error

	mu        sync.Mutex
	config    mqtt.ClientConfig
	callbacks mqtt.Callbacks
	calls     int
}

func (d *FakeDialer) NewClient(cfg mqtt.ClientConfig, callbacks mqtt.Callbacks) (mqtt.MQTTClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.config = cfg
	d.callbacks = callbacks
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Client, nil
}

// Config returns the last client configuration.
func (d *FakeDialer) Config() mqtt.ClientConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Calls returns how many clients were built.
func (d *FakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// FireConnect invokes the OnConnect callback.
func (d *FakeDialer) FireConnect() {
	d.mu.Lock()
	cb := d.callbacks.OnConnect
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// FireConnectionLost invokes the OnConnectionLost callback.
func (d *FakeDialer) FireConnectionLost(err error) {
	d.mu.Lock()
	cb := d.callbacks.OnConnectionLost
	d.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
