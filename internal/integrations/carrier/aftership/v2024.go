package aftership

import (
	"context"
	"net/http"
	"net/url"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/pkg/errors"
)

type v2024Tracking struct {
	Slug                         string  `json:"slug"`
	TrackingNumber               string  `json:"tracking_number"`
	Tag                          string  `json:"tag"`
	ShipmentDeliveryDate         *string `json:"shipment_delivery_date"`
	CourierEstimatedDeliveryDate *struct {
		EstimatedDeliveryDate *string `json:"estimated_delivery_date"`
	} `json:"courier_estimated_delivery_date"`
	Checkpoints []checkpoint `json:"checkpoints"`
}

type v2024Resp struct {
	Meta meta `json:"meta"`
	Data struct {
		Trackings []v2024Tracking `json:"trackings"`
	} `json:"data"`
}

func (c *Client) fetch2024(ctx context.Context, trackingNumber, carrierSlug string) (carrier.RawRecord, error) {
	q := url.Values{}
	q.Set("tracking_numbers", trackingNumber)
	if carrierSlug != "" {
		q.Set("slug", carrierSlug)
	}
	path := "/tracking/2024-07/trackings?" + q.Encode()

	var r v2024Resp
	status, err := c.do(ctx, "get", http.MethodGet, path, nil, &r)
	if err != nil {
		return carrier.RawRecord{}, err
	}
	if status/100 != 2 {
		if status == http.StatusNotFound || r.Meta.Code == metaNotFound {
			return carrier.RawRecord{}, c.notFound("get", r.Meta)
		}
		return carrier.RawRecord{}, carrier.NewProviderError(c.provider(), "get", carrier.KindFromStatus(status)).
			WithStatusCode(status).
			WithCause(errors.New(r.Meta.Message))
	}
	if len(r.Data.Trackings) == 0 {
		return carrier.RawRecord{}, c.notFound("get", meta{Message: "no trackings returned"})
	}

	t := r.Data.Trackings[0]
	slug := t.Slug
	if slug == "" {
		slug = carrierSlug
	}
	rec := carrier.RawRecord{
		Provider:       carrier.ProviderAfterShip2024,
		TrackingNumber: trackingNumber,
		Carrier:        slug,
		StatusToken:    t.Tag,
		Events:         toRawEvents(t.Checkpoints),
		DeliveredAt:    deref(t.ShipmentDeliveryDate),
	}
	if t.CourierEstimatedDeliveryDate != nil {
		rec.ExpectedAt = deref(t.CourierEstimatedDeliveryDate.EstimatedDeliveryDate)
	}
	return rec, nil
}
