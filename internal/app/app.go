// Package app wires configuration, persistence backends and the metadata
// store together for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mdstore/internal/config"
	"mdstore/internal/db/redisgw"
	"mdstore/internal/db/repository"
	"mdstore/internal/domain"
	"mdstore/internal/metrics"
	"mdstore/internal/service/catalog"
	"mdstore/internal/snapshot"
)

// OpenStore builds the store for cfg.Backend. Durable backends are
// initialized on first use and resumed afterwards. The memory backend loads
// the snapshot at cfg.Path when one exists and starts empty otherwise; either
// way later flushes go to that location.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*catalog.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := catalog.Options{
		TableBits:  cfg.TableBits,
		ColumnBits: cfg.ColumnBits,
		Logger:     logger.With("component", "catalog"),
		Metrics:    m,
	}

	if cfg.Backend == config.BackendMemory {
		return openMemoryStore(ctx, cfg, opts, logger)
	}

	gw, err := OpenGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts.Gateway = gw
	store, err := catalog.Open(ctx, opts)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	return store, nil
}

// OpenGateway connects the persistence gateway of a durable backend.
func OpenGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.PersistenceGateway, error) {
	gwLogger := logger.With("component", "gateway", "backend", cfg.Backend)
	switch cfg.Backend {
	case config.BackendSQLite:
		gw, err := repository.OpenSQLiteGateway(cfg.Path, gwLogger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite gateway: %w", err)
		}
		return gw, nil
	case config.BackendPostgres:
		gw, err := repository.OpenPostgresGateway(cfg.DSN, gwLogger)
		if err != nil {
			return nil, fmt.Errorf("open postgres gateway: %w", err)
		}
		return gw, nil
	case config.BackendRedis:
		gw, err := redisgw.Dial(ctx, redisgw.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			Prefix:   cfg.RedisPrefix,
		}, gwLogger)
		if err != nil {
			return nil, fmt.Errorf("open redis gateway: %w", err)
		}
		return gw, nil
	default:
		return nil, domain.ErrValidation("backend %q has no persistence gateway", cfg.Backend)
	}
}

func openMemoryStore(ctx context.Context, cfg *config.Config, opts catalog.Options, logger *slog.Logger) (*catalog.Store, error) {
	sink, err := snapshot.ParseLocation(cfg.Path, S3Options(cfg))
	if err != nil {
		return nil, err
	}
	store, err := catalog.Load(ctx, sink, opts)
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		logger.Info("no snapshot yet, starting empty", "location", sink.String())
		opts.Sink = sink
		return catalog.New(opts)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("snapshot loaded", "location", sink.String())
	return store, nil
}

// S3Options maps the optional S3 settings onto snapshot client options.
func S3Options(cfg *config.Config) snapshot.S3Options {
	var o snapshot.S3Options
	if cfg.S3KeyID != nil {
		o.KeyID = *cfg.S3KeyID
	}
	if cfg.S3Secret != nil {
		o.Secret = *cfg.S3Secret
	}
	if cfg.S3Endpoint != nil {
		o.Endpoint = *cfg.S3Endpoint
	}
	if cfg.S3Region != nil {
		o.Region = *cfg.S3Region
	}
	return o
}
