package models

import (
	"time"

	"github.com/benmeehan/iot-swarm/pkg/metrics"
)

// HostMetricsConfig selects the host collectors to run, by collector name.
type HostMetricsConfig struct {
	Collectors map[string]struct{}
}

// Metric is a single collected value with its unit.
type Metric struct {
	Value interface{} `json:"value"`
	Unit  string      `json:"unit"`
}

// SystemMetrics represents the host metrics collected at a specific time
type SystemMetrics struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]Metric `json:"metrics"`
}

// ProcessMetrics describes the simulator process itself.
type ProcessMetrics struct {
	CPUUsage   *float64 `json:"cpu_usage,omitempty"`
	RSSBytes   *uint64  `json:"rss_bytes,omitempty"`
	OpenFiles  *int32   `json:"open_files,omitempty"`
	NumThreads *int32   `json:"num_threads,omitempty"`
}

// RunSummary is written at the end of a run.
type RunSummary struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Devices    int                      `json:"devices"`
	Operations []metrics.OperationStats `json:"operations"`
	Host       *SystemMetrics           `json:"host,omitempty"`
}
