package main

import (
	"context"
	"time"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/broker/kafka"
	"github.com/BearBump/TrackRisk/internal/cache/rediscache"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/providers"
	"github.com/BearBump/TrackRisk/internal/services/checker"
	"github.com/BearBump/TrackRisk/internal/services/sweep"
	"github.com/BearBump/TrackRisk/internal/storage/pgorders"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

type workerFactories struct {
	newStorage       func(ctx context.Context, cfg *config.Config) (repo sweep.Repository, closeFn func(), err error)
	newPublisher     func(cfg *config.Config) sweep.Publisher
	newRateLimiter   func(cfg *config.Config) sweep.RateLimiter
	newCarrierClient func(cfg *config.Config) (carrier.Client, carrier.Provider, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (sweep.Repository, func(), error) {
			conns := cfg.TrackRisk.WorkerConcurrency
			if conns <= 0 {
				conns = sweep.DefaultConcurrency
			}
			// +2 на /readyz и claim
			st, err := pgorders.Open(ctx, cfg.Database.ConnString(), 60*time.Second, pgorders.WithMaxConns(int32(conns+2)))
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newPublisher: func(cfg *config.Config) sweep.Publisher {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newRateLimiter: func(cfg *config.Config) sweep.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newCarrierClient: func(cfg *config.Config) (carrier.Client, carrier.Provider, error) {
			return providers.New(cfg.Provider)
		},
	}
}

// RunTrackWorker собирает sweeper из фабрик и крутит его до отмены ctx.
// Если задан httpOpts.httpAddr, рядом поднимается служебный HTTP.
func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	client, provider, err := f.newCarrierClient(cfg)
	if err != nil {
		return err
	}

	repo, closeFn, err := f.newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	publisher := f.newPublisher(cfg)
	if c, ok := publisher.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	reg := httpOpts.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := telemetry.NewMetrics(reg)

	ch := checker.New(client,
		checker.WithProviderName(string(provider)),
		checker.WithTimeout(cfg.Provider.Timeout()),
		checker.WithMetrics(metrics),
	)

	s := sweep.New(repo, ch, publisher, f.newRateLimiter(cfg), cfg.Kafka.CheckedTopic()).
		WithSettings(sweep.SettingsFrom(cfg.TrackRisk)).
		WithPlanner(sweep.NewPlanner(sweep.PlannerConfigFrom(cfg.TrackRisk), nil)).
		WithMetrics(metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	if httpOpts.httpAddr != "" {
		httpOpts.sweeper = s
		httpOpts.cfg = cfg
		httpOpts.registry = reg
		if p, ok := repo.(pinger); ok {
			httpOpts.ready = append(httpOpts.ready, p)
		}
		g.Go(func() error { return runWorkerHTTPServer(gctx, httpOpts) })
	}
	return g.Wait()
}
