package services

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/benmeehan/iot-swarm/pkg/location"
)

type publishCall struct {
	Topic   string
	Payload string
	QoS     byte
	Timeout time.Duration
}

// fakeSession records what a device does with its connection.
type fakeSession struct {
	mu         sync.Mutex
	connectErr error
	publishErr error
	connects   int
	closes     int
	published  []publishCall
	subscribed []string
	handler    paho.MessageHandler
}

func (f *fakeSession) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSession) Publish(topic string, payload []byte, qos byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{Topic: topic, Payload: string(payload), QoS: qos, Timeout: timeout})
	return f.publishErr
}

func (f *fakeSession) Subscribe(topic string, _ byte, _ time.Duration, handler paho.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	f.handler = handler
	return nil
}

func (f *fakeSession) Published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.published...)
}

func (f *fakeSession) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeSession) Handler() paho.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeSession) Counts() (connects, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.closes
}

// sequence returns the given values in turn, repeating the last one.
func sequence(values ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

type failingProvider struct{}

func (failingProvider) GetLocation() (location.Location, error) {
	return location.Location{}, errors.New("no fix")
}
