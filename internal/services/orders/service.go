package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/cache"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/storage/pgorders"
	"github.com/BearBump/TrackRisk/internal/tracking"
	"github.com/pkg/errors"
)

const (
	maxCreateItems = 10_000
	maxBulkCheck   = 1_000

	defaultBulkConcurrency = 8
	defaultNextCheck       = 60 * time.Minute
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOrderNotFound   = errors.New("order not found")
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

type Repository interface {
	CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error)
	ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error)
	RefreshOrder(ctx context.Context, orderID uint64) error
	ApplyCheckResult(ctx context.Context, upd pgorders.CheckUpdate) (*models.Order, []*models.OrderEvent, error)
}

// Checker: ядро: провайдер + нормализация + риск.
type Checker interface {
	Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error)
	Provider() string
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic string, key []byte, v any) error
}

// Scheduler решает, когда проверять заказ в следующий раз.
type Scheduler interface {
	NextCheckAt(now time.Time, res models.NormalizedTracking, failCount int32) time.Time
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration

	checker   Checker
	scheduler Scheduler

	publisher        Publisher
	transitionsTopic string

	bulkConcurrency int
	now             func() time.Time
}

type Option func(*Service)

func WithChecker(c Checker) Option {
	return func(s *Service) { s.checker = c }
}

func WithScheduler(sc Scheduler) Option {
	return func(s *Service) { s.scheduler = sc }
}

// WithTransitionsPublisher включает публикацию переходов в topic.
func WithTransitionsPublisher(p Publisher, topic string) Option {
	return func(s *Service) {
		s.publisher = p
		s.transitionsTopic = topic
	}
}

func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkConcurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		cache:           c,
		currentTTL:      currentTTL,
		bulkConcurrency: defaultBulkConcurrency,
		now:             time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error) {
	if len(items) == 0 {
		return nil, invalidf("items is empty")
	}
	if len(items) > maxCreateItems {
		return nil, invalidf("too many items (max %d)", maxCreateItems)
	}

	clean := make([]models.OrderCreateInput, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.ShopID = strings.TrimSpace(it.ShopID)
		it.ReceiptID = strings.TrimSpace(it.ReceiptID)
		it.TrackingNumber = strings.TrimSpace(it.TrackingNumber)
		if it.ShopID == "" {
			return nil, invalidf("shopId is required")
		}
		if it.ReceiptID == "" {
			return nil, invalidf("receiptId is required")
		}
		if it.TrackingNumber == "" {
			return nil, invalidf("trackingNumber is required")
		}
		k := it.ShopID + "|" + it.ReceiptID
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		it.Carrier = tracking.ResolveCarrier(it.Carrier, it.TrackingNumber)
		clean = append(clean, it)
	}

	return s.repo.CreateOrGetOrders(ctx, clean)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

// GetOrdersByIDs отдаёт заказы в порядке ids: сначала кэш, промахи из БД.
// Ошибки кэша считаются промахами.
func (s *Service) GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error) {
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Order, len(ids))

	if s.cacheEnabled() {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var o models.Order
			if json.Unmarshal(b, &o) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &o
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetOrdersByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, o := range fromDB {
			s.putCache(ctx, o)
			got[o.ID] = o
		}
	}

	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := got[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Service) getOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	if orderID == 0 {
		return nil, invalidf("orderId is required")
	}
	got, err := s.GetOrdersByIDs(ctx, []uint64{orderID})
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %d", orderID)
	}
	return got[0], nil
}

func (s *Service) ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error) {
	if orderID == 0 {
		return nil, invalidf("orderId is required")
	}
	return s.repo.ListOrderEvents(ctx, orderID, limit, offset)
}

func (s *Service) RefreshOrder(ctx context.Context, orderID uint64) error {
	if orderID == 0 {
		return invalidf("orderId is required")
	}
	return s.repo.RefreshOrder(ctx, orderID)
}

// DraftMessage подбирает черновик сообщения покупателю по текущему состоянию заказа.
func (s *Service) DraftMessage(ctx context.Context, orderID uint64) (models.MessageTemplate, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return models.MessageTemplate{}, err
	}
	return tracking.SelectTemplate(o.Status, o.RiskLevel, o.ReceiptID), nil
}

// ApplyCheckResult сохраняет результат проверки, пишет переходы, обновляет
// кэш и публикует переходы (best effort).
func (s *Service) ApplyCheckResult(ctx context.Context, msg messages.TrackingChecked) (*models.Order, error) {
	if msg.OrderID == 0 {
		return nil, invalidf("order_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = s.now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: если воркер не прислал next_check_at, ставим "через час"
		msg.NextCheckAt = msg.CheckedAt.Add(defaultNextCheck)
	}

	updated, transitions, err := s.repo.ApplyCheckResult(ctx, pgorders.CheckUpdate{
		OrderID:     msg.OrderID,
		CheckedAt:   msg.CheckedAt,
		NextCheckAt: msg.NextCheckAt,
		Result:      msg.Result,
	})
	if errors.Is(err, pgorders.ErrOrderNotFound) {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %d", msg.OrderID)
	}
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, updated)
	s.publishTransitions(ctx, updated, transitions)

	if msg.Failed() {
		slog.Warn("order check failed", "order_id", msg.OrderID, "fail_count", updated.CheckFailCount, "err", *msg.Result.Error)
	}
	return updated, nil
}

func (s *Service) publishTransitions(ctx context.Context, o *models.Order, transitions []*models.OrderEvent) {
	if s.publisher == nil || s.transitionsTopic == "" {
		return
	}
	for _, e := range transitions {
		m := messages.NewOrderTransition(o, e.Kind, e.From, e.To, e.CreatedAt)
		if err := s.publisher.PublishJSON(ctx, s.transitionsTopic, m.Key(), m); err != nil {
			slog.Error("publish order transition failed",
				"order_id", o.ID,
				"kind", e.Kind,
				"topic", s.transitionsTopic,
				"err", err,
			)
		}
	}
}

func (s *Service) putCache(ctx context.Context, o *models.Order) {
	if !s.cacheEnabled() || o == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		slog.Debug("encode order for cache failed", "order_id", o.ID, "err", err)
		return
	}
	if err := s.cache.Set(ctx, currentKey(o.ID), b, s.currentTTL); err != nil {
		slog.Debug("cache set failed", "order_id", o.ID, "err", err)
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("order:%d:current", id)
}
