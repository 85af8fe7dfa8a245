package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu    sync.Mutex
	calls int
	items []*models.Order
	err   error
}

func (r *fakeRepo) ClaimDueOrders(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	items := r.items
	r.items = nil
	return items, r.err
}

type fakeChecker struct {
	res   models.NormalizedTracking
	err   error
	mu    sync.Mutex
	calls []models.TrackingQuery
}

func (c *fakeChecker) Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error) {
	c.mu.Lock()
	c.calls = append(c.calls, q)
	c.mu.Unlock()
	return c.res, c.err
}

func (c *fakeChecker) Provider() string { return "mock" }

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	topic    string
	key      []byte
	msgs     []messages.TrackingChecked
}

func (p *fakePublisher) PublishJSON(ctx context.Context, topic string, key []byte, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("kafka not ready")
	}
	p.topic, p.key = topic, key
	p.msgs = append(p.msgs, v.(messages.TrackingChecked))
	return nil
}

type fakeRL struct {
	allowed bool
	err     error
}

func (r fakeRL) AllowProvider(ctx context.Context, provider string, limit int64) (bool, error) {
	return r.allowed, r.err
}

func newTestSweeper(repo Repository, ch Checker, pub Publisher, rl RateLimiter) *Sweeper {
	s := New(repo, ch, pub, rl, "tracking.checked")
	s.now = func() time.Time { return fixedNow }
	s.sleep = func(context.Context, time.Duration) error { return nil }
	s.planner = NewPlanner(PlannerConfig{InTransitMinDelay: time.Hour, InTransitMaxDelay: time.Hour}, nil)
	return s
}

func TestSweeper_processOne_OkPublishes(t *testing.T) {
	ch := &fakeChecker{res: models.NormalizedTracking{Status: models.StatusInTransit, RiskLevel: models.RiskGreen, Carrier: "ups"}}
	fp := &fakePublisher{}
	s := newTestSweeper(nil, ch, fp, fakeRL{allowed: true})

	o := &models.Order{ID: 42, TrackingNumber: "1Z999AA10123456784", Carrier: "ups"}
	require.NoError(t, s.processOne(context.Background(), o))

	require.Equal(t, []models.TrackingQuery{{TrackingNumber: "1Z999AA10123456784", CarrierHint: "ups"}}, ch.calls)
	require.Equal(t, "tracking.checked", fp.topic)
	require.Equal(t, []byte("42"), fp.key)
	require.Len(t, fp.msgs, 1)
	require.Equal(t, uint64(42), fp.msgs[0].OrderID)
	require.Equal(t, "mock", fp.msgs[0].Provider)
	require.Equal(t, fixedNow, fp.msgs[0].CheckedAt)
	require.Equal(t, fixedNow.Add(time.Hour), fp.msgs[0].NextCheckAt)
}

func TestSweeper_processOne_FailedCheckBacksOff(t *testing.T) {
	errMsg := "provider unavailable"
	ch := &fakeChecker{res: models.NormalizedTracking{Status: models.StatusUnknown, RiskLevel: models.RiskYellow, Error: &errMsg}}
	fp := &fakePublisher{}
	s := newTestSweeper(nil, ch, fp, nil)

	require.NoError(t, s.processOne(context.Background(), &models.Order{ID: 1, TrackingNumber: "X", CheckFailCount: 2}))
	require.Len(t, fp.msgs, 1)
	require.True(t, fp.msgs[0].Failed())
	require.Equal(t, fixedNow.Add(30*time.Minute), fp.msgs[0].NextCheckAt)
	require.Equal(t, int64(1), s.Stats().TotalFailedChecks)
}

func TestSweeper_processOne_RateLimitedSkips(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	ch := &fakeChecker{}
	fp := &fakePublisher{}
	s := newTestSweeper(nil, ch, fp, fakeRL{allowed: false}).WithMetrics(m)

	require.NoError(t, s.processOne(context.Background(), &models.Order{ID: 1, TrackingNumber: "X"}))
	require.Empty(t, ch.calls)
	require.Zero(t, fp.calls)
	require.Equal(t, int64(1), s.Stats().TotalRateLimited)
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepRateLimited.WithLabelValues("mock")))
}

func TestSweeper_processOne_RateLimiterError(t *testing.T) {
	s := newTestSweeper(nil, &fakeChecker{}, &fakePublisher{}, fakeRL{err: errors.New("redis down")})
	require.Error(t, s.processOne(context.Background(), &models.Order{ID: 1, TrackingNumber: "X"}))
}

func TestSweeper_processOne_PublishRetries(t *testing.T) {
	fp := &fakePublisher{failures: 3}
	s := newTestSweeper(nil, &fakeChecker{res: models.NormalizedTracking{Status: models.StatusDelivered, RiskLevel: models.RiskGreen}}, fp, nil)

	require.NoError(t, s.processOne(context.Background(), &models.Order{ID: 1, TrackingNumber: "X"}))
	require.Equal(t, 4, fp.calls)
	require.Len(t, fp.msgs, 1)
}

func TestSweeper_processOne_PublishGivesUp(t *testing.T) {
	fp := &fakePublisher{failures: 100}
	s := newTestSweeper(nil, &fakeChecker{}, fp, nil)

	require.Error(t, s.processOne(context.Background(), &models.Order{ID: 1, TrackingNumber: "X"}))
	require.Equal(t, publishAttempts, fp.calls)
}

func TestSweeper_RunOnce_ProcessesClaimed(t *testing.T) {
	repo := &fakeRepo{items: []*models.Order{
		{ID: 1, TrackingNumber: "A"},
		{ID: 2, TrackingNumber: "B"},
		{ID: 3, TrackingNumber: "C"},
	}}
	fp := &fakePublisher{}
	s := newTestSweeper(repo, &fakeChecker{res: models.NormalizedTracking{Status: models.StatusInTransit, RiskLevel: models.RiskGreen}}, fp, nil).
		WithSettings(Settings{Concurrency: 2})

	s.RunOnce(context.Background())

	st := s.Stats()
	require.Equal(t, int64(3), st.TotalClaimed)
	require.Equal(t, int64(3), st.TotalProcessed)
	require.Zero(t, st.TotalErrors)
	require.Zero(t, st.InFlight)
	require.NotNil(t, st.LastCycleAt)
	require.Len(t, fp.msgs, 3)
}

func TestSweeper_RunOnce_ConcurrentDefaultPlanner(t *testing.T) {
	const n = 200
	items := make([]*models.Order, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, &models.Order{ID: uint64(i), TrackingNumber: "1Z999AA10123456784", Carrier: "ups"})
	}
	fp := &fakePublisher{}
	ch := &fakeChecker{res: models.NormalizedTracking{Status: models.StatusInTransit, RiskLevel: models.RiskGreen}}
	s := newTestSweeper(&fakeRepo{items: items}, ch, fp, nil).
		WithPlanner(DefaultPlanner()).
		WithSettings(Settings{Concurrency: 16, BatchSize: n})

	s.RunOnce(context.Background())

	require.Equal(t, int64(n), s.Stats().TotalProcessed)
	require.Zero(t, s.Stats().TotalErrors)
	require.Len(t, fp.msgs, n)
	seen := make(map[uint64]bool, n)
	for _, m := range fp.msgs {
		seen[m.OrderID] = true
		d := m.NextCheckAt.Sub(fixedNow)
		require.GreaterOrEqual(t, d, time.Hour)
		require.LessOrEqual(t, d, 2*time.Hour)
	}
	require.Len(t, seen, n)
}

func TestSweeper_RunOnce_ClaimError(t *testing.T) {
	s := newTestSweeper(&fakeRepo{err: errors.New("db down")}, &fakeChecker{}, &fakePublisher{}, nil)
	s.RunOnce(context.Background())
	require.Equal(t, "db down", s.Stats().LastError)
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeChecker{}, &fakePublisher{}, nil, "t").WithSettings(Settings{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestSweeper_TriggerRunsCycle(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeChecker{}, &fakePublisher{}, nil, "t").WithSettings(Settings{PollInterval: time.Hour})
	s.Trigger()
	s.Trigger() // второй не блокирует

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.calls >= 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NotNil(t, s.Stats().LastTriggerAt)
}

func TestSweeper_WithSettings(t *testing.T) {
	s := New(nil, &fakeChecker{}, &fakePublisher{}, nil, "t").
		WithSettings(Settings{
			PollInterval:       5 * time.Second,
			BatchSize:          7,
			Concurrency:        9,
			Lease:              11 * time.Second,
			CheckDelay:         time.Second,
			RateLimitPerMinute: 13,
		})
	st := s.Settings()
	require.Equal(t, 5*time.Second, st.PollInterval)
	require.Equal(t, 7, st.BatchSize)
	require.Equal(t, 9, st.Concurrency)
	require.Equal(t, 11*time.Second, st.Lease)
	require.Equal(t, time.Second, st.CheckDelay)
	require.Equal(t, int64(13), st.RateLimitPerMinute)

	s.WithSettings(Settings{})
	require.Equal(t, st, s.Settings())
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
