package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/TrackRisk/internal/broker/kafka"
	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/mock"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/services/checker"
	"github.com/BearBump/TrackRisk/internal/services/orders"
	"github.com/BearBump/TrackRisk/internal/storage/pgorders"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	applied []pgorders.CheckUpdate
}

func (r *fakeRepo) CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error) {
	return []*models.Order{}, nil
}
func (r *fakeRepo) GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error) {
	return []*models.Order{}, nil
}
func (r *fakeRepo) ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error) {
	return []*models.OrderEvent{}, nil
}
func (r *fakeRepo) RefreshOrder(ctx context.Context, orderID uint64) error { return nil }
func (r *fakeRepo) ApplyCheckResult(ctx context.Context, upd pgorders.CheckUpdate) (*models.Order, []*models.OrderEvent, error) {
	if upd.OrderID == 404 {
		return nil, nil, pgorders.ErrOrderNotFound
	}
	if upd.OrderID == 500 {
		return nil, nil, errors.New("pg is down")
	}
	r.applied = append(r.applied, upd)
	return &models.Order{ID: upd.OrderID, Status: upd.Result.Status, RiskLevel: upd.Result.RiskLevel}, nil, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRunTrackAPI_ServesAPIAndSwagger(t *testing.T) {
	sw := writeSwagger(t)

	reg := prometheus.NewRegistry()
	ch := checker.New(mock.New(), checker.WithMetrics(telemetry.NewMetrics(reg)))
	svc := orders.New(&fakeRepo{}, nil, time.Minute, orders.WithChecker(ch))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := trackAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "t",
		consumerGroup: "g",
		gatherer:      reg,
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runTrackAPI(ctx, opts, svc, ch, fakeConsumer{})
	}()

	base := "http://" + <-addrCh

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/v1/tracking/check", "application/json",
		bytes.NewReader([]byte(`{"trackingNumber":"9400111899223197428490"}`)))
	require.NoError(t, err)
	var res models.NormalizedTracking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	_ = resp.Body.Close()
	require.Equal(t, "usps", res.Carrier)
	require.Equal(t, models.StatusInTransit, res.Status)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(body), "trackrisk_checks_total")

	cancel()
	require.Error(t, <-errCh)
}

func TestRunTrackAPI_SwaggerRequired(t *testing.T) {
	svc := orders.New(&fakeRepo{}, nil, time.Minute)
	err := runTrackAPI(context.Background(), trackAPIOpts{httpAddr: "127.0.0.1:0"}, svc, nil, fakeConsumer{})
	require.Error(t, err)

	err = runTrackAPI(context.Background(), trackAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, svc, nil, fakeConsumer{})
	require.ErrorContains(t, err, "swagger file not found")
}

func TestHandleTrackingChecked(t *testing.T) {
	repo := &fakeRepo{}
	svc := orders.New(repo, nil, time.Minute)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := messages.NewTrackingChecked(7, "mock", now, now.Add(time.Hour), models.NormalizedTracking{
		Status: models.StatusDelivered, RiskLevel: models.RiskGreen, Carrier: "ups", LastUpdate: now,
	})
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, handleTrackingChecked(ctx, svc, raw))
	require.Len(t, repo.applied, 1)
	require.Equal(t, uint64(7), repo.applied[0].OrderID)
	require.Equal(t, models.StatusDelivered, repo.applied[0].Result.Status)

	err = handleTrackingChecked(ctx, svc, []byte("{not json"))
	require.ErrorIs(t, err, kafka.ErrPoison)

	msg.OrderID = 404
	raw, _ = json.Marshal(msg)
	require.ErrorIs(t, handleTrackingChecked(ctx, svc, raw), kafka.ErrPoison)

	msg.OrderID = 500
	raw, _ = json.Marshal(msg)
	err = handleTrackingChecked(ctx, svc, raw)
	require.Error(t, err)
	require.NotErrorIs(t, err, kafka.ErrPoison)
}
