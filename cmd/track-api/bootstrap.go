package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/broker/kafka"
	"github.com/BearBump/TrackRisk/internal/cache/rediscache"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/providers"
	"github.com/BearBump/TrackRisk/internal/services/checker"
	"github.com/BearBump/TrackRisk/internal/services/orders"
	"github.com/BearBump/TrackRisk/internal/services/sweep"
	"github.com/BearBump/TrackRisk/internal/storage/pgorders"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type trackAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackAPIOpts
	svc      *orders.Service
	checker  *checker.Checker
	consumer *kafka.Consumer
	producer *kafka.Producer
	cache    *rediscache.RedisCache
	closeDB  func()
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.TrackRisk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackRisk.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-api"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	client, provider, err := providers.New(cfg.Provider)
	if err != nil {
		panic(err)
	}
	ch := checker.New(client,
		checker.WithProviderName(string(provider)),
		checker.WithTimeout(cfg.Provider.Timeout()),
		checker.WithMetrics(metrics),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := pgorders.Open(ctx, cfg.Database.ConnString(), 60*time.Second)
	if err != nil {
		cancel()
		panic(err)
	}
	rc := rediscache.New(cfg.Redis.Addr())
	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	svc := orders.New(st, rc, cfg.TrackRisk.CurrentStatusTTL(),
		orders.WithChecker(ch),
		orders.WithScheduler(sweep.NewPlanner(sweep.PlannerConfigFrom(cfg.TrackRisk), nil)),
		orders.WithTransitionsPublisher(producer, cfg.Kafka.TransitionsTopic()),
		orders.WithBulkConcurrency(cfg.TrackRisk.BulkCheckConcurrency),
	)

	topic := cfg.Kafka.CheckedTopic()
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	return &trackAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: trackAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
			gatherer:      reg,
		},
		svc:      svc,
		checker:  ch,
		consumer: consumer,
		producer: producer,
		cache:    rc,
		closeDB:  st.Close,
	}
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.svc, a.checker, a.consumer)
}
