package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"

	"github.com/benmeehan/iot-swarm/internal/models"
)

// MemoryMetricCollector collects the percentage of used virtual memory on the host.
type MemoryMetricCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the memory metric collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect retrieves the percentage of used virtual memory.
func (m *MemoryMetricCollector) Collect(ctx context.Context) interface{} {
	stats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return nil
	}

	m.Logger.Debug().Float64("memory_usage_percent", stats.UsedPercent).Msg("Memory usage collected")
	return &stats.UsedPercent
}

func (m *MemoryMetricCollector) IsEnabled(config *models.HostMetricsConfig) bool {
	return enabled(config, m.Name())
}

func (m *MemoryMetricCollector) Unit() string {
	return "percentage"
}

func (m *MemoryMetricCollector) Description() string {
	return "Percentage of used virtual memory on the host."
}
