package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Новый заказ ещё не проверялся: unknown/yellow, как у классификатора.
const (
	initialStatus = models.StatusUnknown
	initialRisk   = models.RiskYellow
)

const orderColumns = `
  id, shop_id, receipt_id, tracking_number, carrier,
  status, risk_level, last_update, location, message, delivery_date,
  last_error, last_checked_at, next_check_at, check_fail_count,
  created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o      models.Order
		status string
		risk   string
	)
	if err := row.Scan(
		&o.ID, &o.ShopID, &o.ReceiptID, &o.TrackingNumber, &o.Carrier,
		&status, &risk, &o.LastUpdate, &o.Location, &o.Message, &o.DeliveryDate,
		&o.LastError, &o.LastCheckedAt, &o.NextCheckAt, &o.CheckFailCount,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = models.TrackingStatus(status)
	o.RiskLevel = models.RiskLevel(risk)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateOrGetOrders вставляет заказы; существующая пара (shop_id, receipt_id)
// возвращается как есть. Порядок результата совпадает с items.
func (s *Storage) CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO orders (
  shop_id, receipt_id, tracking_number, carrier, status, risk_level, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7,$7)
ON CONFLICT (shop_id, receipt_id)
DO UPDATE SET updated_at = orders.updated_at
RETURNING id
`, it.ShopID, it.ReceiptID, it.TrackingNumber, it.Carrier, string(initialStatus), string(initialRisk), now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert order")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	got, err := s.GetOrdersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]*models.Order, len(got))
	for _, o := range got {
		byID[o.ID] = o
	}
	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Storage) GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error) {
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+orderColumns+`
FROM orders
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	return collectOrders(rows)
}

func (s *Storage) RefreshOrder(ctx context.Context, orderID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE orders SET next_check_at = now(), updated_at = now() WHERE id = $1`, orderID)
	return errors.Wrap(err, "refresh order")
}

// ClaimDueOrders выбирает пачку заказов, готовых к проверке, и "бронирует" их
// на lease, чтобы параллельный воркер не взял их повторно.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueOrders(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT`+orderColumns+`
FROM orders
WHERE next_check_at <= $1
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due orders")
	}
	picked, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	leaseUntil := now.UTC().Add(lease)
	for _, o := range picked {
		_, err := tx.Exec(ctx, `UPDATE orders SET next_check_at = $2, updated_at = now() WHERE id = $1`, o.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease order")
		}
		o.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
