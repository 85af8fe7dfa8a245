package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/services/sweep"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	sweeper  *sweep.Sweeper
	cfg      *config.Config
	registry *prometheus.Registry
	ready    []pinger
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newWorkerRouter(opts workerHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, p := range opts.ready {
			if err := p.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.sweeper == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "sweeper not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.sweeper.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "config not wired"})
			return
		}
		// только рабочие настройки, без ключей провайдера
		t := opts.cfg.TrackRisk
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":                     opts.cfg.Provider.Kind,
			"providerTimeoutSeconds":       int(opts.cfg.Provider.Timeout().Seconds()),
			"pollIntervalSeconds":          t.WorkerPollIntervalSeconds,
			"batchSize":                    t.WorkerBatchSize,
			"concurrency":                  t.WorkerConcurrency,
			"leaseSeconds":                 t.WorkerLeaseSeconds,
			"rateLimitPerMinute":           t.WorkerRateLimitPerMinute,
			"checkDelayMillis":             t.WorkerCheckDelayMillis,
			"nextCheckInTransitMinSeconds": t.WorkerNextCheckInTransitMinSeconds,
			"nextCheckInTransitMaxSeconds": t.WorkerNextCheckInTransitMaxSeconds,
			"nextCheckUnknownSeconds":      t.WorkerNextCheckUnknownSeconds,
			"nextCheckRedSeconds":          t.WorkerNextCheckRedSeconds,
			"nextCheckDeliveredSeconds":    t.WorkerNextCheckDeliveredSeconds,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.sweeper == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "sweeper not wired"})
			return
		}
		opts.sweeper.Trigger()
		writeJSON(w, http.StatusOK, map[string]bool{"triggered": true})
	})

	if opts.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.registry, promhttp.HandlerOpts{}))
	}

	// no-store + cachebuster, чтобы swagger-ui не показывал старую схему
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
