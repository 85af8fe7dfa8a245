package sweep

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueOrders(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error)
}

type Checker interface {
	Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error)
	Provider() string
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic string, key []byte, v any) error
}

type RateLimiter interface {
	AllowProvider(ctx context.Context, provider string, limit int64) (bool, error)
}

const publishAttempts = 10

// DefaultConcurrency: сколько заказов проверяется одновременно, если в конфиге 0.
const DefaultConcurrency = 4

// Sweeper периодически забирает заказы, которым пора проверяться, прогоняет
// их через ядро и публикует tracking.checked. Сохраняет результат track-api.
type Sweeper struct {
	repo      Repository
	checker   Checker
	publisher Publisher
	rl        RateLimiter
	metrics   *telemetry.Metrics

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	checkDelay         time.Duration
	rateLimitPerMinute int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalFailedChecks   atomic.Int64
	totalRateLimited    atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, checker Checker, publisher Publisher, rl RateLimiter, topic string) *Sweeper {
	return &Sweeper{
		repo: repo, checker: checker, publisher: publisher, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       30 * time.Second,
		batchSize:          100,
		concurrency:        DefaultConcurrency,
		lease:              5 * time.Minute,
		checkDelay:         500 * time.Millisecond,
		rateLimitPerMinute: 120,
		now:                time.Now,
		sleep:              sleepCtx,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

// Settings: параметры цикла; нулевые значения не меняют дефолты.
type Settings struct {
	PollInterval       time.Duration
	BatchSize          int
	Concurrency        int
	Lease              time.Duration
	CheckDelay         time.Duration
	RateLimitPerMinute int64
}

func SettingsFrom(cfg config.TrackRiskConfig) Settings {
	return Settings{
		PollInterval:       seconds(cfg.WorkerPollIntervalSeconds),
		BatchSize:          cfg.WorkerBatchSize,
		Concurrency:        cfg.WorkerConcurrency,
		Lease:              seconds(cfg.WorkerLeaseSeconds),
		CheckDelay:         time.Duration(cfg.WorkerCheckDelayMillis) * time.Millisecond,
		RateLimitPerMinute: int64(cfg.WorkerRateLimitPerMinute),
	}
}

func (s *Sweeper) WithSettings(st Settings) *Sweeper {
	if st.PollInterval > 0 {
		s.pollInterval = st.PollInterval
	}
	if st.BatchSize > 0 {
		s.batchSize = st.BatchSize
	}
	if st.Concurrency > 0 {
		s.concurrency = st.Concurrency
	}
	if st.Lease > 0 {
		s.lease = st.Lease
	}
	if st.CheckDelay > 0 {
		s.checkDelay = st.CheckDelay
	}
	if st.RateLimitPerMinute > 0 {
		s.rateLimitPerMinute = st.RateLimitPerMinute
	}
	return s
}

func (s *Sweeper) Settings() Settings {
	return Settings{
		PollInterval:       s.pollInterval,
		BatchSize:          s.batchSize,
		Concurrency:        s.concurrency,
		Lease:              s.lease,
		CheckDelay:         s.checkDelay,
		RateLimitPerMinute: s.rateLimitPerMinute,
	}
}

func (s *Sweeper) WithPlanner(p *Planner) *Sweeper {
	if p != nil {
		s.planner = p
	}
	return s
}

func (s *Sweeper) WithMetrics(m *telemetry.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt         time.Time  `json:"startedAt"`
	LastCycleAt       *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt     *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed      int64      `json:"totalClaimed"`
	TotalProcessed    int64      `json:"totalProcessed"`
	TotalFailedChecks int64      `json:"totalFailedChecks"`
	TotalRateLimited  int64      `json:"totalRateLimited"`
	TotalErrors       int64      `json:"totalErrors"`
	InFlight          int64      `json:"inFlight"`
	LastError         string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:         time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalClaimed:      s.totalClaimed.Load(),
		TotalProcessed:    s.totalProcessed.Load(),
		TotalFailedChecks: s.totalFailedChecks.Load(),
		TotalRateLimited:  s.totalRateLimited.Load(),
		TotalErrors:       s.totalErrors.Load(),
		InFlight:          s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.RunOnce(ctx)
		case <-s.triggerCh:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce делает один цикл: claim, проверка, публикация.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	items, err := s.repo.ClaimDueOrders(ctx, now, s.batchSize, s.lease)
	if err != nil {
		slog.Error("claim due orders", "error", err.Error())
		s.setLastError(err)
		return
	}
	s.totalClaimed.Add(int64(len(items)))
	s.metrics.RecordClaimed(len(items))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, o := range items {
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.processOne(ctx, o); err != nil {
				s.totalErrors.Add(1)
				s.setLastError(err)
				slog.Error("process order", "order_id", o.ID, "error", err.Error())
			}
			s.totalProcessed.Add(1)
			// пауза между проверками, чтобы не долбить провайдера
			_ = s.sleep(ctx, s.checkDelay)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) processOne(ctx context.Context, o *models.Order) error {
	provider := s.checker.Provider()
	if s.rl != nil {
		allowed, err := s.rl.AllowProvider(ctx, provider, s.rateLimitPerMinute)
		if err != nil {
			return err
		}
		if !allowed {
			// Лимит исчерпан: заказ вернётся в выборку после истечения lease.
			s.totalRateLimited.Add(1)
			s.metrics.RecordRateLimited(provider)
			slog.Warn("provider rate limit exceeded", "provider", provider, "order_id", o.ID)
			return nil
		}
	}

	res, err := s.checker.Check(ctx, models.TrackingQuery{
		TrackingNumber: o.TrackingNumber,
		CarrierHint:    o.Carrier,
	})
	if err != nil {
		return errors.Wrapf(err, "check order %d", o.ID)
	}

	now := s.now().UTC()
	fails := int32(0)
	if res.Error != nil {
		s.totalFailedChecks.Add(1)
		fails = o.CheckFailCount + 1
	}
	msg := messages.NewTrackingChecked(o.ID, provider, now, s.planner.NextCheckAt(now, res, fails), res)

	// Kafka может быть не готова сразу после старта docker compose: ретраим.
	var pubErr error
	for i := 0; i < publishAttempts; i++ {
		if pubErr = s.publisher.PublishJSON(ctx, s.topic, msg.Key(), msg); pubErr == nil {
			return nil
		}
		if err := s.sleep(ctx, time.Duration(150*(i+1))*time.Millisecond); err != nil {
			break
		}
	}
	s.metrics.RecordPublishFailure(s.topic)
	return pubErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
