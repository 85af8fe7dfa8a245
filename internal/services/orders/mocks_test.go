package orders

import (
	"context"
	"time"

	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/storage/pgorders"
	"github.com/stretchr/testify/mock"
)

type repoMock struct{ mock.Mock }

func (m *repoMock) CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error) {
	args := m.Called(ctx, items)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *repoMock) GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *repoMock) ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error) {
	args := m.Called(ctx, orderID, limit, offset)
	return args.Get(0).([]*models.OrderEvent), args.Error(1)
}

func (m *repoMock) RefreshOrder(ctx context.Context, orderID uint64) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *repoMock) ApplyCheckResult(ctx context.Context, upd pgorders.CheckUpdate) (*models.Order, []*models.OrderEvent, error) {
	args := m.Called(ctx, upd)
	var o *models.Order
	if v := args.Get(0); v != nil {
		o = v.(*models.Order)
	}
	var evs []*models.OrderEvent
	if v := args.Get(1); v != nil {
		evs = v.([]*models.OrderEvent)
	}
	return o, evs, args.Error(2)
}

type cacheMock struct{ mock.Mock }

func (m *cacheMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *cacheMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

type checkerMock struct{ mock.Mock }

func (m *checkerMock) Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(models.NormalizedTracking), args.Error(1)
}

func (m *checkerMock) Provider() string { return "mock" }

type publisherMock struct{ mock.Mock }

func (m *publisherMock) PublishJSON(ctx context.Context, topic string, key []byte, v any) error {
	return m.Called(ctx, topic, key, v).Error(0)
}

type schedulerMock struct{ mock.Mock }

func (m *schedulerMock) NextCheckAt(now time.Time, res models.NormalizedTracking, failCount int32) time.Time {
	return m.Called(now, res, failCount).Get(0).(time.Time)
}
