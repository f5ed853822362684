package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"

	"github.com/benmeehan/iot-swarm/internal/models"
)

// CPUMetricCollector reports host CPU utilisation, so a saturated load
// generator can be told apart from a slow broker.
type CPUMetricCollector struct {
	Logger zerolog.Logger
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

func (c *CPUMetricCollector) Collect(ctx context.Context) interface{} {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU usage")
		return nil
	}
	if len(percentages) == 0 {
		c.Logger.Warn().Msg("CPU usage data is empty")
		return nil
	}

	c.Logger.Debug().Float64("cpu_usage", percentages[0]).Msg("CPU usage collected")
	return &percentages[0]
}

func (c *CPUMetricCollector) IsEnabled(config *models.HostMetricsConfig) bool {
	return enabled(config, c.Name())
}

func (c *CPUMetricCollector) Unit() string {
	return "percentage"
}

func (c *CPUMetricCollector) Description() string {
	return "Host CPU utilisation across all cores."
}
