package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/climate-daily-etl/internal/adapter/climate"
	"github.com/couchcryptid/climate-daily-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-daily-etl/internal/config"
	"github.com/couchcryptid/climate-daily-etl/internal/observability"
	"github.com/couchcryptid/climate-daily-etl/internal/pipeline"
	"github.com/couchcryptid/climate-daily-etl/internal/store"
	"github.com/couchcryptid/climate-daily-etl/internal/store/postgres"
	"github.com/couchcryptid/climate-daily-etl/internal/store/sqlite"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	store     store.ObservationStore
	publisher *kafka.Publisher
	pipeline  *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var fetcher pipeline.Fetcher = climate.NewClient(cfg.FetchTimeout, metrics, logger)
	if cfg.PageCacheSize > 0 {
		fetcher = climate.NewCachedFetcher(fetcher, cfg.PageCacheSize, metrics)
	}

	opts := []pipeline.Option{
		pipeline.WithDefectSink(observability.Tee(
			observability.LogDefects(logger),
			observability.CountDefects(metrics),
		)),
		pipeline.WithTimeouts(cfg.FetchTimeout, cfg.StoreTimeout),
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics, store: st}
	if cfg.FeedEnabled() {
		a.publisher = kafka.NewPublisher(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(a.publisher))
		logger.Info("change feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	pages := climate.NewPages(cfg.SourceBaseURL, cfg.Stations())
	a.pipeline = pipeline.New(fetcher, pages, climate.Rows, st, logger, metrics, opts...)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.ObservationStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
}

// Close releases the store and producer.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}

// locations returns the requested locations, or every configured one.
func (a *app) locations(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return a.cfg.LocationNames(), nil
	}
	stations := a.cfg.Stations()
	for _, loc := range requested {
		if _, ok := stations[loc]; !ok {
			return nil, fmt.Errorf("unknown location %q: configure it in LOCATIONS", loc)
		}
	}
	return requested, nil
}
