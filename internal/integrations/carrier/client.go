package carrier

import (
	"context"
)

// Provider identifies which tracking API produced a RawRecord. The normalizer
// branches on it for status vocabulary and timestamp format.
type Provider string

const (
	ProviderMock          Provider = "mock"
	Provider17Track       Provider = "17track"
	ProviderAfterShipV4   Provider = "aftership_v4"
	ProviderAfterShip2024 Provider = "aftership_2024_07"
)

// RawEvent — один чекпоинт в формате провайдера. Time хранится строкой,
// т.к. провайдеры отдают то epoch seconds, то ISO-8601.
type RawEvent struct {
	Time        string
	StatusToken string
	Message     string
	City        string
	State       string
	Country     string
	Location    string
}

// RawRecord is the provider-tagged intermediate shape returned by a Client.
// Events are ordered newest first: Events[0] is the latest checkpoint.
type RawRecord struct {
	Provider       Provider
	TrackingNumber string
	Carrier        string
	StatusToken    string
	Events         []RawEvent
	ExpectedAt     string
	DeliveredAt    string
}

type Client interface {
	FetchRawTracking(ctx context.Context, trackingNumber, carrierSlug string) (RawRecord, error)
}

// Registrar is implemented by providers that require a tracking number to be
// registered before it can be queried. Already-registered numbers are not an error.
type Registrar interface {
	RegisterTracking(ctx context.Context, trackingNumber, carrierSlug string) error
}

// Fetch registers the number first when the client requires it.
func Fetch(ctx context.Context, c Client, trackingNumber, carrierSlug string) (RawRecord, error) {
	if r, ok := c.(Registrar); ok {
		if err := r.RegisterTracking(ctx, trackingNumber, carrierSlug); err != nil {
			return RawRecord{}, err
		}
	}
	return c.FetchRawTracking(ctx, trackingNumber, carrierSlug)
}

// ReverseEvents flips oldest-first checkpoint lists into the newest-first order
// the normalizer expects.
func ReverseEvents(evs []RawEvent) []RawEvent {
	out := make([]RawEvent, len(evs))
	for i, e := range evs {
		out[len(evs)-1-i] = e
	}
	return out
}
