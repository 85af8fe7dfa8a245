package orders

import (
	"context"
	"time"

	"github.com/BearBump/TrackRisk/internal/broker/messages"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// BulkCheckResult: исход проверки одного заказа в пакете. Ошибка одного
// заказа не влияет на остальные.
type BulkCheckResult struct {
	OrderID uint64                     `json:"orderId"`
	Order   *models.Order              `json:"order,omitempty"`
	Result  *models.NormalizedTracking `json:"result,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// CheckOrder проверяет заказ сейчас и сохраняет результат. При сбое
// провайдера вызывающий получает fallback-результат (unknown/yellow), а
// сохранённые status/risk заказа не меняются.
func (s *Service) CheckOrder(ctx context.Context, orderID uint64) (*models.Order, models.NormalizedTracking, error) {
	if s.checker == nil {
		return nil, models.NormalizedTracking{}, errors.New("checker is not configured")
	}
	if orderID == 0 {
		return nil, models.NormalizedTracking{}, invalidf("orderId is required")
	}
	got, err := s.repo.GetOrdersByIDs(ctx, []uint64{orderID})
	if err != nil {
		return nil, models.NormalizedTracking{}, err
	}
	if len(got) == 0 {
		return nil, models.NormalizedTracking{}, errors.Wrapf(ErrOrderNotFound, "order %d", orderID)
	}
	o := got[0]

	res, err := s.checker.Check(ctx, models.TrackingQuery{
		TrackingNumber: o.TrackingNumber,
		CarrierHint:    o.Carrier,
	})
	if err != nil {
		return nil, models.NormalizedTracking{}, err
	}

	now := s.now().UTC()
	updated, err := s.ApplyCheckResult(ctx, messages.NewTrackingChecked(
		o.ID, s.checker.Provider(), now, s.nextCheckAt(now, res, o.CheckFailCount), res,
	))
	if err != nil {
		return nil, res, err
	}
	return updated, res, nil
}

func (s *Service) nextCheckAt(now time.Time, res models.NormalizedTracking, prevFails int32) time.Time {
	if s.scheduler == nil {
		return now.Add(defaultNextCheck)
	}
	fails := int32(0)
	if res.Error != nil {
		fails = prevFails + 1
	}
	return s.scheduler.NextCheckAt(now, res, fails)
}

// CheckOrders проверяет заказы конкурентно (не больше bulkConcurrency
// одновременно). Результаты в порядке ids.
func (s *Service) CheckOrders(ctx context.Context, ids []uint64) ([]BulkCheckResult, error) {
	if len(ids) == 0 {
		return []BulkCheckResult{}, nil
	}
	if len(ids) > maxBulkCheck {
		return nil, invalidf("too many ids (max %d)", maxBulkCheck)
	}

	out := make([]BulkCheckResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			r := BulkCheckResult{OrderID: id}
			o, res, err := s.CheckOrder(gctx, id)
			if err != nil {
				r.Error = err.Error()
			} else {
				r.Order = o
				r.Result = &res
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "bulk check")
	}
	return out, nil
}
