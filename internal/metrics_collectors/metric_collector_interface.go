package metrics_collectors

import (
	"context"

	"github.com/benmeehan/iot-swarm/internal/models"
)

// MetricCollector defines the interface for collecting a specific metric.
type MetricCollector interface {
	Name() string                                    // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) interface{}         // Collect the metric data
	IsEnabled(config *models.HostMetricsConfig) bool // Check if the metric is enabled in the config
	Unit() string                                    // Unit of the metric (e.g., "percentage", "bytes")
	Description() string                             // Description of the metric
}

func enabled(config *models.HostMetricsConfig, name string) bool {
	if config == nil {
		return false
	}
	_, ok := config.Collectors[name]
	return ok
}
