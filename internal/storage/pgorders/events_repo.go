package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

type CheckUpdate struct {
	OrderID     uint64
	CheckedAt   time.Time
	NextCheckAt time.Time
	Result      models.NormalizedTracking
}

func (s *Storage) ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, order_id, kind, from_value, to_value, created_at
FROM order_events
WHERE order_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := []*models.OrderEvent{}
	for rows.Next() {
		var e models.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.From, &e.To, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyCheckResult сохраняет результат проверки и переходы статуса/риска
// в одной транзакции. Строка заказа блокируется, чтобы diff считался от
// актуального состояния. Неуспешная проверка не трогает status/risk.
func (s *Storage) ApplyCheckResult(ctx context.Context, upd CheckUpdate) (*models.Order, []*models.OrderEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := scanOrder(tx.QueryRow(ctx, `SELECT`+orderColumns+`
FROM orders
WHERE id = $1
FOR UPDATE
`, upd.OrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "lock order")
	}

	res := upd.Result
	checkedAt := upd.CheckedAt.UTC()

	var updated *models.Order
	if res.Error != nil {
		updated, err = scanOrder(tx.QueryRow(ctx, `
UPDATE orders
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
RETURNING`+orderColumns,
			upd.OrderID, checkedAt, *res.Error, upd.NextCheckAt.UTC()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "update order (error)")
		}
	} else {
		lastUpdate := res.LastUpdate.UTC()
		updated, err = scanOrder(tx.QueryRow(ctx, `
UPDATE orders
SET
  status = $3,
  risk_level = $4,
  carrier = $5,
  last_update = $6,
  location = $7,
  message = $8,
  delivery_date = $9,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $10,
  updated_at = now()
WHERE id = $1
RETURNING`+orderColumns,
			upd.OrderID, checkedAt, string(res.Status), string(res.RiskLevel), res.Carrier,
			lastUpdate, res.Location, res.Message, res.DeliveryDate, upd.NextCheckAt.UTC()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "update order (ok)")
		}
	}

	transitions := models.DiffTransitions(prev, res)
	for _, e := range transitions {
		e.CreatedAt = checkedAt
		err := tx.QueryRow(ctx, `
INSERT INTO order_events (order_id, kind, from_value, to_value, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, e.OrderID, e.Kind, e.From, e.To, e.CreatedAt).Scan(&e.ID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "insert order event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "commit tx")
	}
	return updated, transitions, nil
}
