package aftership

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/pkg/errors"
)

type v4Tracking struct {
	Slug                 string       `json:"slug"`
	TrackingNumber       string       `json:"tracking_number"`
	Tag                  string       `json:"tag"`
	ExpectedDelivery     *string      `json:"expected_delivery"`
	ShipmentDeliveryDate *string      `json:"shipment_delivery_date"`
	Checkpoints          []checkpoint `json:"checkpoints"`
}

type v4Resp struct {
	Meta meta `json:"meta"`
	Data struct {
		Tracking *v4Tracking `json:"tracking"`
	} `json:"data"`
}

func (c *Client) fetchV4(ctx context.Context, trackingNumber, carrierSlug string) (carrier.RawRecord, error) {
	path := fmt.Sprintf("/v4/trackings/%s/%s", url.PathEscape(carrierSlug), url.PathEscape(trackingNumber))

	var r v4Resp
	status, err := c.do(ctx, "get", http.MethodGet, path, nil, &r)
	if err != nil {
		return carrier.RawRecord{}, err
	}
	if status == http.StatusNotFound || r.Meta.Code == metaNotFound {
		return carrier.RawRecord{}, c.notFound("get", r.Meta)
	}
	if status/100 != 2 {
		return carrier.RawRecord{}, carrier.NewProviderError(c.provider(), "get", carrier.KindFromStatus(status)).
			WithStatusCode(status).
			WithCause(errors.New(r.Meta.Message))
	}
	if r.Data.Tracking == nil {
		return carrier.RawRecord{}, carrier.NewProviderError(c.provider(), "get", carrier.ErrMalformed).
			WithCause(errors.New("data.tracking is missing"))
	}

	t := r.Data.Tracking
	slug := t.Slug
	if slug == "" {
		slug = carrierSlug
	}
	return carrier.RawRecord{
		Provider:       carrier.ProviderAfterShipV4,
		TrackingNumber: trackingNumber,
		Carrier:        slug,
		StatusToken:    t.Tag,
		Events:         toRawEvents(t.Checkpoints),
		ExpectedAt:     deref(t.ExpectedDelivery),
		DeliveredAt:    deref(t.ShipmentDeliveryDate),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
