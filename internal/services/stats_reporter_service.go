package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/pkg/metrics"
)

// StatsReporterService periodically logs the aggregated operation stats.
type StatsReporterService struct {
	Stats    *metrics.StatsSink
	Interval time.Duration
	Devices  func() int
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsReporterService initializes a new StatsReporterService.
func NewStatsReporterService(stats *metrics.StatsSink, interval time.Duration, devices func() int,
	logger zerolog.Logger) *StatsReporterService {

	return &StatsReporterService{
		Stats:    stats,
		Interval: interval,
		Devices:  devices,
		Logger:   logger,
	}
}

// Start launches the report loop in a separate goroutine.
func (r *StatsReporterService) Start() error {
	if r.ctx != nil {
		r.Logger.Warn().Msg("StatsReporterService is already running")
		return errors.New("stats reporter service is already running")
	}
	if r.Interval <= 0 {
		return errors.New("report interval must be positive")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runReportLoop()
	}()

	r.Logger.Info().Dur("interval", r.Interval).Msg("StatsReporterService started successfully")
	return nil
}

// Stop gracefully stops the reporter after one final report.
func (r *StatsReporterService) Stop() error {
	if r.ctx == nil {
		r.Logger.Warn().Msg("StatsReporterService is not running")
		return errors.New("stats reporter service is not running")
	}

	r.cancel()
	r.wg.Wait()
	r.Report()

	r.ctx = nil
	r.cancel = nil
	return nil
}

func (r *StatsReporterService) runReportLoop() {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Report()
		case <-r.ctx.Done():
			return
		}
	}
}

// Report logs one line per operation name.
func (r *StatsReporterService) Report() {
	devices := 0
	if r.Devices != nil {
		devices = r.Devices()
	}
	for _, op := range r.Stats.Snapshot() {
		r.Logger.Info().
			Int("devices", devices).
			Str("name", op.Name).
			Int64("requests", op.Requests).
			Int64("failures", op.Failures).
			Float64("avg_ms", op.AvgMs).
			Int64("median_ms", op.MedianMs).
			Int64("p95_ms", op.P95Ms).
			Msg("Operation stats")
	}
}
