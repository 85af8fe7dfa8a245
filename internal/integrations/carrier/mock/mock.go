package mock

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/models"
)

const (
	offlineCity    = "Los Angeles"
	offlineState   = "CA"
	offlineCountry = "US"
	offlineMessage = "In transit to next facility"
)

// Client — локальный провайдер без сети. По умолчанию отдаёт фиксированную
// запись "in_transit"; в режиме сценариев статус детерминированно выводится
// из хэша (carrier, track number), чтобы на дашборде было разнообразие.
type Client struct {
	scenarios bool
	now       func() time.Time
}

func New() *Client { return &Client{now: time.Now} }

func NewScenarios() *Client { return &Client{scenarios: true, now: time.Now} }

func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) FetchRawTracking(ctx context.Context, trackingNumber, carrierSlug string) (carrier.RawRecord, error) {
	now := c.now().UTC()
	if !c.scenarios {
		return OfflineRecordAt(trackingNumber, carrierSlug, now), nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(carrierSlug))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(trackingNumber))
	sc := scenarios[h.Sum32()%uint32(len(scenarios))]

	ev := carrier.RawEvent{
		Time:        epoch(now.Add(-sc.age)),
		StatusToken: string(sc.status),
		Message:     sc.message,
		City:        offlineCity,
		State:       offlineState,
		Country:     offlineCountry,
	}
	rec := carrier.RawRecord{
		Provider:       carrier.ProviderMock,
		TrackingNumber: trackingNumber,
		Carrier:        carrierSlug,
		StatusToken:    string(sc.status),
		Events:         []carrier.RawEvent{ev},
	}
	if sc.status == models.StatusDelivered {
		rec.DeliveredAt = ev.Time
	}
	return rec, nil
}

// OfflineRecord is returned by every HTTP-backed client when no provider
// credential is configured (offline/demo mode).
func OfflineRecord(trackingNumber, carrierSlug string) carrier.RawRecord {
	return OfflineRecordAt(trackingNumber, carrierSlug, time.Now().UTC())
}

func OfflineRecordAt(trackingNumber, carrierSlug string, now time.Time) carrier.RawRecord {
	return carrier.RawRecord{
		Provider:       carrier.ProviderMock,
		TrackingNumber: trackingNumber,
		Carrier:        carrierSlug,
		StatusToken:    string(models.StatusInTransit),
		Events: []carrier.RawEvent{{
			Time:        epoch(now),
			StatusToken: string(models.StatusInTransit),
			Message:     offlineMessage,
			City:        offlineCity,
			State:       offlineState,
			Country:     offlineCountry,
		}},
	}
}

type scenario struct {
	status  models.TrackingStatus
	age     time.Duration
	message string
}

var scenarios = []scenario{
	{models.StatusInTransit, 6 * time.Hour, "Departed USPS regional facility"},
	{models.StatusInTransit, 50 * time.Hour, "In transit, arriving late"},
	{models.StatusInTransit, 80 * time.Hour, "In transit"},
	{models.StatusOutForDelivery, 2 * time.Hour, "Out for delivery"},
	{models.StatusDelivered, 20 * time.Hour, "Delivered, in/at mailbox"},
	{models.StatusPreTransit, 12 * time.Hour, "Shipping label created"},
	{models.StatusDeliveryFailed, 5 * time.Hour, "Delivery attempted, no access to delivery location"},
	{models.StatusException, 30 * time.Hour, "Held at customs"},
}

func epoch(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
