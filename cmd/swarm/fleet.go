package main

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/iot-swarm/internal/constants"
	"github.com/benmeehan/iot-swarm/internal/services"
	"github.com/benmeehan/iot-swarm/internal/utils"
	"github.com/benmeehan/iot-swarm/pkg/assets"
	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/identity"
	"github.com/benmeehan/iot-swarm/pkg/location"
	"github.com/benmeehan/iot-swarm/pkg/metrics"
	"github.com/benmeehan/iot-swarm/pkg/mqtt"
	"github.com/benmeehan/iot-swarm/pkg/session"
)

// preloadedTLS hands every session a copy of one config loaded at startup.
type preloadedTLS struct {
	cfg *tls.Config
}

func (p preloadedTLS) Load(mqtt.TLSFiles) (*tls.Config, error) {
	return p.cfg.Clone(), nil
}

func tlsFiles(cfg *utils.Config) mqtt.TLSFiles {
	return mqtt.TLSFiles{
		CACert:         cfg.TLS.CACert,
		ClientCert:     cfg.TLS.ClientCert,
		ClientKey:      cfg.TLS.ClientKey,
		PKCS12Password: cfg.TLS.PKCS12Password,
		MinVersion:     cfg.TLS.MinVersion,
		MaxVersion:     cfg.TLS.MaxVersion,
	}
}

func loadTLS(cfg *utils.Config, fileClient file.FileOperations) (preloadedTLS, error) {
	tlsConfig, err := mqtt.NewTLSLoader(fileClient).Load(tlsFiles(cfg))
	if err != nil {
		return preloadedTLS{}, err
	}
	return preloadedTLS{cfg: tlsConfig}, nil
}

func loadPool(cfg *utils.Config, fileClient file.FileOperations) (*assets.Pool, error) {
	orgIDs, err := assets.ParseOrgIDs(cfg.Dataset.OrgIDs)
	if err != nil {
		return nil, err
	}
	pool, err := assets.LoadDataset(fileClient, cfg.Dataset.File, orgIDs)
	if err != nil {
		return nil, err
	}
	if err := checkPoolSize(cfg, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// checkPoolSize rejects a device count the pool cannot cover. Zero devices
// means the whole pool.
func checkPoolSize(cfg *utils.Config, pool *assets.Pool) error {
	if available := pool.Remaining(); cfg.Swarm.Devices > available {
		return fmt.Errorf("%w: %d devices requested, %d identities available for org ids %q",
			assets.ErrPoolExhausted, cfg.Swarm.Devices, available, cfg.Dataset.OrgIDs)
	}
	return nil
}

func providerFactory(cfg *utils.Config, fileClient file.FileOperations) (services.ProviderFactory, error) {
	switch cfg.Location.Provider {
	case constants.LocationNMEA:
		track, err := location.LoadTrack(fileClient, cfg.Location.TrackFile)
		if err != nil {
			return nil, err
		}
		return func(n int) location.Provider {
			return location.NewNMEATrackProvider(track, n)
		}, nil
	case constants.LocationJitter:
		return func(int) location.Provider {
			return location.NewJitterProvider(location.DefaultBase, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", cfg.Location.Provider)
	}
}

func sessionFactory(cfg *utils.Config, tlsLoader session.TLSLoader, sink metrics.Sink, logger zerolog.Logger) services.SessionFactory {
	return func(id identity.DeviceIdentity) services.DeviceSession {
		return session.New(session.Config{
			Broker:         cfg.Broker.Host,
			DeviceID:       id.Tag,
			TLS:            tlsFiles(cfg),
			KeepAlive:      cfg.Broker.KeepAlive,
			ConnectTimeout: cfg.Broker.ConnectTimeout,
			WriteTimeout:   cfg.Broker.WriteTimeout,
			Reconnect: session.ReconnectPolicy{
				MaxAttempts: cfg.Session.ReconnectMaxAttempts,
				BaseDelay:   cfg.Session.ReconnectBaseDelay,
				MaxDelay:    cfg.Session.ReconnectMaxDelay,
			},
			SweepInterval: cfg.Session.SweepInterval,
			SweepGrace:    cfg.Session.SweepGrace,
		}, sink, logger, session.WithTLSLoader(tlsLoader))
	}
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %w", utils.ErrInvalidConfig, v, err)
	}
	return d, nil
}
