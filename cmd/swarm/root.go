package main

import (
	"github.com/spf13/cobra"

	"github.com/benmeehan/iot-swarm/internal/utils"
)

var (
	configPath string
	devices    int
	duration   string
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "swarm simulates a fleet of MQTT devices against Azure IoT Hub",
	Long: `swarm connects one mutual-TLS MQTT session per asset in a dataset and publishes
telemetry on a fixed cadence, recording latency and failures per operation.

Configuration comes from defaults, then the YAML file given with --config, then
SWARM_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().IntVar(&devices, "devices", 0, "Number of devices to spawn (0 spawns the whole pool)")
	rootCmd.PersistentFlags().StringVar(&duration, "duration", "", "Run length, e.g. 10m (empty runs until interrupted)")
}

// loadConfig reads configuration and applies the command-line overrides.
func loadConfig(cmd *cobra.Command) (*utils.Config, error) {
	cfg, err := utils.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("devices") {
		cfg.Swarm.Devices = devices
	}
	if cmd.Flags().Changed("duration") {
		d, err := parseDuration(duration)
		if err != nil {
			return nil, err
		}
		cfg.Swarm.Duration = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
