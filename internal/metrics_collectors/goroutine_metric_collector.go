package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/models"
)

// GoroutineMetricCollector counts live goroutines. Each device holds a handful,
// so the count tracks the fleet size and exposes leaked waiters.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineMetricCollector) Collect(context.Context) interface{} {
	n := runtime.NumGoroutine()
	g.Logger.Debug().Int("goroutines", n).Msg("Goroutine count collected")
	return &n
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.HostMetricsConfig) bool {
	return enabled(config, g.Name())
}

func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}

func (g *GoroutineMetricCollector) Description() string {
	return "Number of goroutines in the simulator process."
}
