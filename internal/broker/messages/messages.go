package messages

import (
	"strconv"
	"time"

	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/google/uuid"
)

// TrackingChecked публикует воркер после каждой проверки заказа.
type TrackingChecked struct {
	EventID     string                    `json:"event_id"`
	OrderID     uint64                    `json:"order_id"`
	Provider    string                    `json:"provider"`
	CheckedAt   time.Time                 `json:"checked_at"`
	NextCheckAt time.Time                 `json:"next_check_at"`
	Result      models.NormalizedTracking `json:"result"`
}

func NewTrackingChecked(orderID uint64, provider string, checkedAt, nextCheckAt time.Time, res models.NormalizedTracking) TrackingChecked {
	return TrackingChecked{
		EventID:     uuid.NewString(),
		OrderID:     orderID,
		Provider:    provider,
		CheckedAt:   checkedAt,
		NextCheckAt: nextCheckAt,
		Result:      res,
	}
}

// Failed reports whether the provider call behind this check failed.
func (m TrackingChecked) Failed() bool { return m.Result.Error != nil }

func (m TrackingChecked) Key() []byte { return orderKey(m.OrderID) }

// OrderTransition: смена статуса или риска заказа, для уведомлений продавцу.
type OrderTransition struct {
	EventID   string    `json:"event_id"`
	OrderID   uint64    `json:"order_id"`
	ShopID    string    `json:"shop_id"`
	ReceiptID string    `json:"receipt_id"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

func NewOrderTransition(o *models.Order, kind, from, to string, at time.Time) OrderTransition {
	return OrderTransition{
		EventID:   uuid.NewString(),
		OrderID:   o.ID,
		ShopID:    o.ShopID,
		ReceiptID: o.ReceiptID,
		Kind:      kind,
		From:      from,
		To:        to,
		At:        at,
	}
}

func (m OrderTransition) Key() []byte { return orderKey(m.OrderID) }

// Ключ сообщения: id заказа, чтобы события одного заказа шли в одну партицию.
func orderKey(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}
