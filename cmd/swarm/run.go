package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/internal/logger"
	"github.com/benmeehan/iot-swarm/internal/models"
	"github.com/benmeehan/iot-swarm/internal/service_registry"
	"github.com/benmeehan/iot-swarm/internal/services"
	"github.com/benmeehan/iot-swarm/internal/utils"
	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Spawn the device fleet and publish telemetry until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(parent context.Context, cfg *utils.Config) error {
	log, closer, err := logger.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()
	startedAt := time.Now()

	if limit, err := utils.RaiseOpenFileLimit(); err != nil {
		log.Warn().Err(err).Msg("Failed to raise the open file limit")
	} else {
		log.Debug().Uint64("limit", limit).Msg("Open file limit raised")
	}

	fileClient := file.NewFileService()
	pool, err := loadPool(cfg, fileClient)
	if err != nil {
		return err
	}
	tlsLoader, err := loadTLS(cfg, fileClient)
	if err != nil {
		return fmt.Errorf("failed to load TLS material: %w", err)
	}
	newProvider, err := providerFactory(cfg, fileClient)
	if err != nil {
		return err
	}

	sessionLog := logger.Get("session").With().Str("run_id", runID).Logger()
	stats := metrics.NewStatsSink()
	sinks := metrics.Multi{stats, metrics.NewLogSink(sessionLog)}

	var server *http.Server
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		promSink, err := metrics.NewPrometheusSink(reg, cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		sinks = append(sinks, promSink)
		server = serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	sr := service_registry.NewServiceRegistry(log)
	err = sr.RegisterServices(cfg, service_registry.Dependencies{
		Pool:        pool,
		NewSession:  sessionFactory(cfg, tlsLoader, sinks, sessionLog),
		NewProvider: newProvider,
		Stats:       stats,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("broker", cfg.Broker.Host).
		Int("pool", pool.Remaining()).
		Int("devices", cfg.Swarm.Devices).
		Dur("duration", cfg.Swarm.Duration).
		Msg("Starting swarm")

	if err := sr.StartServices(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Swarm.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Swarm.Duration)
		defer cancel()
	}
	<-ctx.Done()
	log.Info().Msg("Shutting down swarm")

	summary := models.RunSummary{RunID: runID, StartedAt: startedAt}
	if svc, ok := sr.Service(constants.ServiceSwarm); ok {
		summary.Devices = svc.(*services.SwarmService).Spawned()
	}
	if svc, ok := sr.Service(constants.ServiceHostMonitor); ok {
		summary.Host = svc.(*services.HostMonitorService).Latest()
	}

	stopErr := sr.StopServices()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		cancel()
	}

	summary.FinishedAt = time.Now()
	summary.Operations = stats.Snapshot()
	logSummary(log, summary)
	if cfg.Metrics.SummaryFile != "" {
		if err := fileClient.WriteJsonFile(cfg.Metrics.SummaryFile, summary); err != nil {
			log.Error().Err(err).Str("path", cfg.Metrics.SummaryFile).Msg("Failed to write run summary")
		}
	}
	return stopErr
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return server
}

func logSummary(log zerolog.Logger, summary models.RunSummary) {
	log.Info().
		Int("devices", summary.Devices).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Run finished")
	for _, op := range summary.Operations {
		log.Info().
			Str("operation", op.Name).
			Int64("requests", op.Requests).
			Int64("failures", op.Failures).
			Int64("median_ms", op.MedianMs).
			Int64("p95_ms", op.P95Ms).
			Float64("avg_ms", op.AvgMs).
			Msg("Operation summary")
	}
}
