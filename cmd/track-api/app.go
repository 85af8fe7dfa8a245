package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TrackRisk/internal/api/ordersapi"
	"github.com/BearBump/TrackRisk/internal/broker/kafka"
	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	gatherer prometheus.Gatherer

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type ordersService interface {
	ordersapi.OrdersService
	ApplyCheckResult(ctx context.Context, msg messages.TrackingChecked) (*models.Order, error)
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, svc ordersService, checker ordersapi.TrackingChecker, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(opts, ordersapi.New(svc, checker)))
	}()

	consumerErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumerErr <- consumer.Consume(ctx, func(_ []byte, value []byte) error {
			return handleTrackingChecked(ctx, svc, value)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		return errors.Wrap(err, "kafka consumer")
	}
}

// handleTrackingChecked сохраняет результат проверки из воркера. Битые
// сообщения и сообщения про несуществующие заказы пропускаются.
func handleTrackingChecked(ctx context.Context, svc ordersService, value []byte) error {
	var m messages.TrackingChecked
	if err := json.Unmarshal(value, &m); err != nil {
		return errors.Wrapf(kafka.ErrPoison, "decode tracking.checked: %v", err)
	}
	if _, err := svc.ApplyCheckResult(ctx, m); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) || errors.Is(err, orders.ErrInvalidArgument) {
			return errors.Wrapf(kafka.ErrPoison, "apply tracking.checked: %v", err)
		}
		return err
	}
	return nil
}

func newRouter(opts trackAPIOpts, api *ordersapi.API) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	gatherer := opts.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	api.Routes(r)
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
