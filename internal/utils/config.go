package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/pkg/assets"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the structure of the configuration file.
type Config struct {
	Broker struct {
		Host           string        // IoT Hub host, optionally with ":port"
		KeepAlive      time.Duration // MQTT keepalive interval
		ConnectTimeout time.Duration // Time allowed for a CONNACK
		WriteTimeout   time.Duration // Time allowed for a single packet write
	}

	TLS struct {
		CACert         string // Path to the CA certificate
		ClientCert     string // Path to the client certificate (PEM or .p12)
		ClientKey      string // Path to the client private key
		PKCS12Password string // Password for a .p12 client bundle
		MinVersion     string // Minimum TLS version, e.g. "1.2"
		MaxVersion     string // Maximum TLS version, empty for none
	}

	Dataset struct {
		File   string // Path to the JSON or YAML asset dataset
		OrgIDs string // Colon-separated organization ids
	}

	Device struct {
		Warmup           time.Duration // Delay before the first publish
		MinWait          time.Duration // Lower bound of the wait between publishes
		MaxWait          time.Duration // Upper bound of the wait between publishes
		PublishTimeout   time.Duration // Deadline for a publish acknowledgement
		SubscribeTimeout time.Duration // Deadline for a subscription acknowledgement
		CloudToDevice    bool          // Subscribe to the cloud-to-device topic after connecting
	}

	Location struct {
		Provider  string // "jitter" or "nmea"
		TrackFile string // NMEA log replayed by the nmea provider
	}

	Session struct {
		ReconnectMaxAttempts int           // 0 retries forever
		ReconnectBaseDelay   time.Duration // Linear backoff step
		ReconnectMaxDelay    time.Duration // Backoff ceiling
		SweepInterval        time.Duration // How often unacknowledged messages are expired
		SweepGrace           time.Duration // Extra time past a message timeout before it is expired
	}

	Swarm struct {
		Devices      int           // Number of devices to spawn, 0 for the whole pool
		SpawnRate    float64       // Devices spawned per second
		SpawnWorkers int           // Concurrent connection setups
		Duration     time.Duration // Run length, 0 until interrupted
	}

	Metrics struct {
		Listen         string        // Address for the Prometheus endpoint, empty to disable
		Namespace      string        // Prometheus namespace
		SummaryFile    string        // JSON summary written at the end of a run
		ReportInterval time.Duration // Interval between stats log lines
	}

	Host struct {
		Enabled    bool          // Enable/disable host monitoring
		Interval   time.Duration // Interval between collections
		Timeout    time.Duration // Timeout for one collection
		Collectors []string      // Collector names: cpu, memory, goroutines, process
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// LoadConfig reads defaults, then the YAML file at path (or configs/config.yaml
// when path is empty and the file exists), then SWARM_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("dataset.org_ids", "SWARM_ORG_IDS", "ORG_IDS"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	cfg.Broker.Host = v.GetString("broker.host")
	cfg.Broker.KeepAlive = v.GetDuration("broker.keep_alive")
	cfg.Broker.ConnectTimeout = v.GetDuration("broker.connect_timeout")
	cfg.Broker.WriteTimeout = v.GetDuration("broker.write_timeout")

	cfg.TLS.CACert = v.GetString("tls.ca_cert")
	cfg.TLS.ClientCert = v.GetString("tls.client_cert")
	cfg.TLS.ClientKey = v.GetString("tls.client_key")
	cfg.TLS.PKCS12Password = v.GetString("tls.pkcs12_password")
	cfg.TLS.MinVersion = v.GetString("tls.min_version")
	cfg.TLS.MaxVersion = v.GetString("tls.max_version")

	cfg.Dataset.File = v.GetString("dataset.file")
	cfg.Dataset.OrgIDs = v.GetString("dataset.org_ids")

	cfg.Device.Warmup = v.GetDuration("device.warmup")
	cfg.Device.MinWait = v.GetDuration("device.min_wait")
	cfg.Device.MaxWait = v.GetDuration("device.max_wait")
	cfg.Device.PublishTimeout = v.GetDuration("device.publish_timeout")
	cfg.Device.SubscribeTimeout = v.GetDuration("device.subscribe_timeout")
	cfg.Device.CloudToDevice = v.GetBool("device.cloud_to_device")

	cfg.Location.Provider = v.GetString("location.provider")
	cfg.Location.TrackFile = v.GetString("location.track_file")

	cfg.Session.ReconnectMaxAttempts = v.GetInt("session.reconnect_max_attempts")
	cfg.Session.ReconnectBaseDelay = v.GetDuration("session.reconnect_base_delay")
	cfg.Session.ReconnectMaxDelay = v.GetDuration("session.reconnect_max_delay")
	cfg.Session.SweepInterval = v.GetDuration("session.sweep_interval")
	cfg.Session.SweepGrace = v.GetDuration("session.sweep_grace")

	cfg.Swarm.Devices = v.GetInt("swarm.devices")
	cfg.Swarm.SpawnRate = v.GetFloat64("swarm.spawn_rate")
	cfg.Swarm.SpawnWorkers = v.GetInt("swarm.spawn_workers")
	cfg.Swarm.Duration = v.GetDuration("swarm.duration")

	cfg.Metrics.Listen = v.GetString("metrics.listen")
	cfg.Metrics.Namespace = v.GetString("metrics.namespace")
	cfg.Metrics.SummaryFile = v.GetString("metrics.summary_file")
	cfg.Metrics.ReportInterval = v.GetDuration("metrics.report_interval")

	cfg.Host.Enabled = v.GetBool("host.enabled")
	cfg.Host.Interval = v.GetDuration("host.interval")
	cfg.Host.Timeout = v.GetDuration("host.timeout")
	cfg.Host.Collectors = v.GetStringSlice("host.collectors")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.File = v.GetString("log.file")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.keep_alive", 60*time.Second)
	v.SetDefault("broker.connect_timeout", 30*time.Second)
	v.SetDefault("broker.write_timeout", 10*time.Second)

	v.SetDefault("tls.min_version", "1.2")

	v.SetDefault("device.warmup", constants.DefaultWarmup)
	v.SetDefault("device.min_wait", constants.DefaultMinWait)
	v.SetDefault("device.max_wait", constants.DefaultMaxWait)
	v.SetDefault("device.publish_timeout", constants.DefaultPublishTimeout)
	v.SetDefault("device.subscribe_timeout", constants.DefaultSubscribeTimeout)
	v.SetDefault("device.cloud_to_device", false)

	v.SetDefault("location.provider", constants.LocationJitter)

	v.SetDefault("session.reconnect_max_attempts", 0)
	v.SetDefault("session.reconnect_base_delay", time.Second)
	v.SetDefault("session.reconnect_max_delay", 30*time.Second)
	v.SetDefault("session.sweep_interval", time.Second)
	v.SetDefault("session.sweep_grace", 5*time.Second)

	v.SetDefault("swarm.devices", 0)
	v.SetDefault("swarm.spawn_rate", 10.0)
	v.SetDefault("swarm.spawn_workers", 16)
	v.SetDefault("swarm.duration", 0)

	v.SetDefault("metrics.namespace", "swarm")
	v.SetDefault("metrics.report_interval", 30*time.Second)

	v.SetDefault("host.enabled", true)
	v.SetDefault("host.interval", 15*time.Second)
	v.SetDefault("host.timeout", 5*time.Second)
	v.SetDefault("host.collectors", []string{"cpu", "memory", "goroutines", "process"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate reports every problem at once, each wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Broker.Host == "" {
		add("broker.host is required")
	}
	if c.TLS.CACert == "" || c.TLS.ClientCert == "" {
		add("tls.ca_cert and tls.client_cert are required")
	}
	if c.Dataset.File == "" {
		add("dataset.file is required")
	}
	if _, err := assets.ParseOrgIDs(c.Dataset.OrgIDs); err != nil {
		errs = append(errs, fmt.Errorf("%w: dataset.org_ids: %w", ErrInvalidConfig, err))
	}
	if c.Device.MinWait < 0 || c.Device.MaxWait < c.Device.MinWait {
		add("device wait window [%s, %s] is invalid", c.Device.MinWait, c.Device.MaxWait)
	}
	if c.Device.PublishTimeout <= 0 {
		add("device.publish_timeout must be positive")
	}
	switch c.Location.Provider {
	case constants.LocationJitter:
	case constants.LocationNMEA:
		if c.Location.TrackFile == "" {
			add("location.track_file is required for the nmea provider")
		}
	default:
		add("unknown location.provider %q", c.Location.Provider)
	}
	if c.Session.ReconnectMaxAttempts < 0 {
		add("session.reconnect_max_attempts must not be negative")
	}
	if c.Session.SweepInterval <= 0 || c.Session.SweepGrace <= 0 {
		add("session.sweep_interval and session.sweep_grace must be positive")
	}
	if c.Swarm.Devices < 0 {
		add("swarm.devices must not be negative")
	}
	if c.Swarm.SpawnRate <= 0 {
		add("swarm.spawn_rate must be positive")
	}
	if c.Swarm.SpawnWorkers <= 0 {
		add("swarm.spawn_workers must be positive")
	}
	if c.Host.Enabled && c.Host.Interval <= 0 {
		add("host.interval must be positive")
	}

	return errors.Join(errs...)
}
