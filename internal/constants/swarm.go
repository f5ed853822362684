package constants

import "time"

// Device behaviour defaults.
const (
	// DefaultWarmup is the pause between a device connecting and its first publish.
	DefaultWarmup = 5 * time.Second

	// DefaultMinWait and DefaultMaxWait bound the uniform wait between publishes.
	DefaultMinWait = 29 * time.Second
	DefaultMaxWait = 31 * time.Second

	// DefaultPublishTimeout is how long a telemetry publish may stay unacknowledged.
	DefaultPublishTimeout = 10 * time.Second

	// DefaultSubscribeTimeout is how long a subscription may stay unacknowledged.
	DefaultSubscribeTimeout = 15 * time.Second
)

// CloudToDeviceTopicFormat is the IoT Hub topic filter a device subscribes to for
// cloud-to-device messages.
const CloudToDeviceTopicFormat = "devices/%s/messages/devicebound/#"

// Location provider names.
const (
	LocationJitter = "jitter"
	LocationNMEA   = "nmea"
)

// Service names, in start order.
const (
	ServiceSwarm         = "swarm"
	ServiceHostMonitor   = "host_monitor"
	ServiceStatsReporter = "stats_reporter"
)
