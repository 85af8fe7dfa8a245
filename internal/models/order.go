package models

import "time"

type Order struct {
	ID             uint64         `json:"id"`
	ShopID         string         `json:"shopId"`
	ReceiptID      string         `json:"receiptId"`
	TrackingNumber string         `json:"trackingNumber"`
	Carrier        string         `json:"carrier"`
	Status         TrackingStatus `json:"status"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	LastUpdate     *time.Time     `json:"lastUpdate,omitempty"`
	Location       *string        `json:"location,omitempty"`
	Message        *string        `json:"message,omitempty"`
	DeliveryDate   *time.Time     `json:"deliveryDate,omitempty"`
	LastError      *string        `json:"lastError,omitempty"`
	LastCheckedAt  *time.Time     `json:"lastCheckedAt,omitempty"`
	NextCheckAt    time.Time      `json:"nextCheckAt"`
	CheckFailCount int32          `json:"checkFailCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Виды переходов, которые пишутся в order_events.
const (
	OrderEventStatusChanged = "status_changed"
	OrderEventRiskChanged   = "risk_changed"
)

type OrderEvent struct {
	ID        uint64    `json:"id"`
	OrderID   uint64    `json:"orderId"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderCreateInput struct {
	ShopID         string `json:"shopId"`
	ReceiptID      string `json:"receiptId"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier,omitempty"`
}

// DiffTransitions returns the status and risk transitions between the stored
// order state and a fresh result. Failed results never produce transitions.
func DiffTransitions(o *Order, res NormalizedTracking) []*OrderEvent {
	if o == nil || res.Error != nil {
		return nil
	}
	var out []*OrderEvent
	if o.Status != res.Status {
		out = append(out, &OrderEvent{
			OrderID: o.ID,
			Kind:    OrderEventStatusChanged,
			From:    string(o.Status),
			To:      string(res.Status),
		})
	}
	if o.RiskLevel != res.RiskLevel {
		out = append(out, &OrderEvent{
			OrderID: o.ID,
			Kind:    OrderEventRiskChanged,
			From:    string(o.RiskLevel),
			To:      string(res.RiskLevel),
		})
	}
	return out
}
