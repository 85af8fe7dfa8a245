package tracking

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/models"
)

// Таблицы статусов провайдеров. Ключи в нижнем регистре.
var (
	seventeenTrackStatuses = map[string]models.TrackingStatus{
		"notfound":           models.StatusUnknown,
		"inforeceived":       models.StatusPreTransit,
		"intransit":          models.StatusInTransit,
		"expired":            models.StatusLost,
		"availableforpickup": models.StatusOutForDelivery,
		"outfordelivery":     models.StatusOutForDelivery,
		"deliveryfailure":    models.StatusDeliveryFailed,
		"delivered":          models.StatusDelivered,
		"exception":          models.StatusException,
	}

	afterShipStatuses = map[string]models.TrackingStatus{
		"pending":            models.StatusPreTransit,
		"inforeceived":       models.StatusPreTransit,
		"intransit":          models.StatusInTransit,
		"outfordelivery":     models.StatusOutForDelivery,
		"availableforpickup": models.StatusOutForDelivery,
		"attemptfail":        models.StatusDeliveryFailed,
		"delivered":          models.StatusDelivered,
		"exception":          models.StatusException,
		"expired":            models.StatusLost,
	}
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer converts provider records into NormalizedTracking values.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

func (n *Normalizer) Normalize(raw carrier.RawRecord) models.NormalizedTracking {
	now := n.now().UTC()

	token := raw.StatusToken
	var latest *carrier.RawEvent
	if len(raw.Events) > 0 {
		latest = &raw.Events[0]
		if token == "" {
			token = latest.StatusToken
		}
	}
	status := MapStatus(raw.Provider, token)

	out := models.NormalizedTracking{
		Status:     status,
		Carrier:    carrierSlug(raw.Carrier),
		LastUpdate: now,
	}
	if latest != nil {
		if t, ok := ParseTimestamp(raw.Provider, latest.Time); ok {
			out.LastUpdate = t
		}
		out.Location = formatLocation(*latest)
		out.Message = nonEmpty(latest.Message)
	}

	deliveryRaw := raw.DeliveredAt
	if deliveryRaw == "" {
		deliveryRaw = raw.ExpectedAt
	}
	if t, ok := ParseTimestamp(raw.Provider, deliveryRaw); ok {
		out.DeliveryDate = &t
	}

	out.RiskLevel = ClassifyRisk(out.Status, out.LastUpdate, now)
	return out
}

// Failure builds the fallback result for a failed provider call.
func (n *Normalizer) Failure(carrierName string, err error) models.NormalizedTracking {
	msg := "tracking provider failure"
	if err != nil {
		msg = err.Error()
	}
	return models.NormalizedTracking{
		Status:     models.StatusUnknown,
		RiskLevel:  models.RiskYellow,
		Carrier:    carrierSlug(carrierName),
		LastUpdate: n.now().UTC(),
		Error:      &msg,
	}
}

// MapStatus maps a provider status token onto the universal status set.
// Unrecognized tokens map to unknown.
func MapStatus(p carrier.Provider, token string) models.TrackingStatus {
	key := strings.ToLower(strings.TrimSpace(token))
	if key == "" {
		return models.StatusUnknown
	}

	var (
		st models.TrackingStatus
		ok bool
	)
	switch p {
	case carrier.Provider17Track:
		st, ok = seventeenTrackStatuses[key]
	case carrier.ProviderAfterShipV4, carrier.ProviderAfterShip2024:
		st, ok = afterShipStatuses[key]
	default:
		st = models.TrackingStatus(key)
		ok = st.Valid()
	}
	if !ok {
		slog.Debug("unrecognized provider status", "provider", string(p), "token", token)
		return models.StatusUnknown
	}
	return st
}

// ParseTimestamp parses a provider timestamp. The mock provider reports epoch
// seconds, the HTTP providers ISO-8601 with or without an offset.
func ParseTimestamp(p carrier.Provider, s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if p == carrier.ProviderMock {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0).UTC(), true
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func formatLocation(e carrier.RawEvent) *string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.City, e.State, e.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		s := strings.Join(parts, ", ")
		return &s
	}
	return nonEmpty(e.Location)
}

func carrierSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return models.CarrierUnknown
	}
	return s
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
