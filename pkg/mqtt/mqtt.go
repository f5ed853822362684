package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPort is the MQTT-over-TLS port used when the broker address carries none.
const DefaultPort = "8883"

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Callbacks carries the connection events a client reports back to its owner.
// Both functions are invoked from the client's network goroutines.
type Callbacks struct {
	OnConnect        func()
	OnConnectionLost func(err error)
}

// ClientConfig holds everything needed to build one device connection.
type ClientConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TLS            *tls.Config
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// Dialer creates MQTT clients. The session never calls mqtt.NewClient directly
// so tests can substitute their own transport.
type Dialer interface {
	NewClient(cfg ClientConfig, callbacks Callbacks) (MQTTClient, error)
}

// PahoDialer builds clients backed by eclipse/paho.mqtt.golang.
type PahoDialer struct{}

// NewPahoDialer returns the default Dialer.
func NewPahoDialer() *PahoDialer {
	return &PahoDialer{}
}

// NewClient sets up the paho client options and returns an unconnected client.
// Automatic reconnection is disabled; reconnect policy belongs to the caller.
func (d *PahoDialer) NewClient(cfg ClientConfig, callbacks Callbacks) (MQTTClient, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("broker url is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetProtocolVersion(4)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(false)

	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.WriteTimeout > 0 {
		opts.SetWriteTimeout(cfg.WriteTimeout)
	}

	if callbacks.OnConnect != nil {
		opts.SetOnConnectHandler(func(mqtt.Client) {
			callbacks.OnConnect()
		})
	}
	if callbacks.OnConnectionLost != nil {
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			callbacks.OnConnectionLost(err)
		})
	}

	return mqtt.NewClient(opts), nil
}

// SplitHostPort separates "host[:port]", falling back to DefaultPort.
func SplitHostPort(hostPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return strings.TrimSpace(hostPort), DefaultPort
	}
	if port == "" {
		port = DefaultPort
	}
	return host, port
}

// BrokerURL turns "host[:port]" into the ssl:// URL paho expects.
func BrokerURL(hostPort string) string {
	host, port := SplitHostPort(hostPort)
	return "ssl://" + net.JoinHostPort(host, port)
}
