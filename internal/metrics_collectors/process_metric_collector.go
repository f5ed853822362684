package metrics_collectors

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"

	"github.com/benmeehan/iot-swarm/internal/models"
)

// ProcessMetricCollector reports the simulator's own CPU, RSS, open files and
// threads. Open files approach RLIMIT_NOFILE as the fleet grows.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
	Pid    int32
}

// NewProcessMetricCollector watches the current process.
func NewProcessMetricCollector(logger zerolog.Logger) *ProcessMetricCollector {
	return &ProcessMetricCollector{Logger: logger, Pid: int32(os.Getpid())}
}

func (p *ProcessMetricCollector) Name() string {
	return "process"
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := process.NewProcess(p.Pid)
	if err != nil {
		p.Logger.Error().Err(err).Int32("pid", p.Pid).Msg("Failed to open process")
		return nil
	}

	metrics := &models.ProcessMetrics{}
	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		metrics.CPUUsage = &cpuPercent
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get process CPU usage")
	}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		metrics.RSSBytes = &memInfo.RSS
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get process memory information")
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		metrics.OpenFiles = &fds
	} else {
		p.Logger.Debug().Err(err).Msg("Open file count unavailable")
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		metrics.NumThreads = &threads
	}
	return metrics
}

func (p *ProcessMetricCollector) IsEnabled(config *models.HostMetricsConfig) bool {
	return enabled(config, p.Name())
}

func (p *ProcessMetricCollector) Unit() string {
	return "mixed"
}

func (p *ProcessMetricCollector) Description() string {
	return "CPU, resident memory, open files and threads of the simulator process."
}
