package seventeentrack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/mock"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.17track.net"

	// -18019901: номер уже зарегистрирован, повторная регистрация не нужна.
	codeAlreadyRegistered = -18019901
)

// carrierCodes: числовые коды 17TRACK для наших слагов.
var carrierCodes = map[string]int{
	"usps":  21051,
	"ups":   100002,
	"fedex": 100003,
	"dhl":   100001,
}

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type numberReq struct {
	Number  string `json:"number"`
	Carrier int    `json:"carrier,omitempty"`
}

type rejected struct {
	Number string `json:"number"`
	Error  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type registerResp struct {
	Code int `json:"code"`
	Data struct {
		Rejected []rejected `json:"rejected"`
	} `json:"data"`
}

type eventResp struct {
	TimeISO     string `json:"time_iso"`
	TimeUTC     string `json:"time_utc"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Stage       string `json:"stage"`
	Address     struct {
		Country string `json:"country"`
		State   string `json:"state"`
		City    string `json:"city"`
	} `json:"address"`
}

type trackInfoResp struct {
	Code int `json:"code"`
	Data struct {
		Accepted []struct {
			Number    string `json:"number"`
			TrackInfo struct {
				LatestStatus struct {
					Status string `json:"status"`
				} `json:"latest_status"`
				TimeMetrics struct {
					EstimatedDeliveryDate struct {
						From string `json:"from"`
						To   string `json:"to"`
					} `json:"estimated_delivery_date"`
				} `json:"time_metrics"`
				Tracking struct {
					Providers []struct {
						Events []eventResp `json:"events"`
					} `json:"providers"`
				} `json:"tracking"`
			} `json:"track_info"`
		} `json:"accepted"`
		Rejected []rejected `json:"rejected"`
	} `json:"data"`
}

func (c *Client) RegisterTracking(ctx context.Context, trackingNumber, carrierSlug string) error {
	if c.apiKey == "" {
		return nil
	}
	var rr registerResp
	if err := c.post(ctx, "register", "/track/v2.2/register", trackingNumber, carrierSlug, &rr); err != nil {
		return err
	}
	if rr.Code != 0 {
		return carrier.NewProviderError(carrier.Provider17Track, "register", carrier.ErrUnavailable).
			WithCause(errors.Errorf("api code %d", rr.Code))
	}
	for _, r := range rr.Data.Rejected {
		if r.Error.Code == codeAlreadyRegistered {
			continue
		}
		return carrier.NewProviderError(carrier.Provider17Track, "register", carrier.ErrUnavailable).
			WithCause(errors.Errorf("rejected %d: %s", r.Error.Code, r.Error.Message))
	}
	return nil
}

func (c *Client) FetchRawTracking(ctx context.Context, trackingNumber, carrierSlug string) (carrier.RawRecord, error) {
	if c.apiKey == "" {
		return mock.OfflineRecord(trackingNumber, carrierSlug), nil
	}

	var tr trackInfoResp
	if err := c.post(ctx, "gettrackinfo", "/track/v2.2/gettrackinfo", trackingNumber, carrierSlug, &tr); err != nil {
		return carrier.RawRecord{}, err
	}
	if tr.Code != 0 {
		return carrier.RawRecord{}, carrier.NewProviderError(carrier.Provider17Track, "gettrackinfo", carrier.ErrUnavailable).
			WithCause(errors.Errorf("api code %d", tr.Code))
	}
	if len(tr.Data.Accepted) == 0 {
		pe := carrier.NewProviderError(carrier.Provider17Track, "gettrackinfo", carrier.ErrNotFound)
		if len(tr.Data.Rejected) > 0 {
			pe.WithCause(errors.New(tr.Data.Rejected[0].Error.Message))
		}
		return carrier.RawRecord{}, pe
	}

	info := tr.Data.Accepted[0].TrackInfo
	rec := carrier.RawRecord{
		Provider:       carrier.Provider17Track,
		TrackingNumber: trackingNumber,
		Carrier:        carrierSlug,
		StatusToken:    info.LatestStatus.Status,
		ExpectedAt:     info.TimeMetrics.EstimatedDeliveryDate.To,
	}
	if rec.ExpectedAt == "" {
		rec.ExpectedAt = info.TimeMetrics.EstimatedDeliveryDate.From
	}
	// 17TRACK отдаёт события от новых к старым, переворачивать не нужно.
	if len(info.Tracking.Providers) > 0 {
		for _, e := range info.Tracking.Providers[0].Events {
			ts := e.TimeUTC
			if ts == "" {
				ts = e.TimeISO
			}
			rec.Events = append(rec.Events, carrier.RawEvent{
				Time:        ts,
				StatusToken: e.Stage,
				Message:     e.Description,
				City:        e.Address.City,
				State:       e.Address.State,
				Country:     e.Address.Country,
				Location:    e.Location,
			})
		}
	}
	if strings.EqualFold(rec.StatusToken, "Delivered") && len(rec.Events) > 0 {
		rec.DeliveredAt = rec.Events[0].Time
	}
	return rec, nil
}

func (c *Client) post(ctx context.Context, op, path, trackingNumber, carrierSlug string, out any) error {
	body, err := json.Marshal([]numberReq{{Number: trackingNumber, Carrier: carrierCodes[carrierSlug]}})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("17token", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.NewProviderError(carrier.Provider17Track, op, carrier.ErrUnavailable).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return carrier.NewProviderError(carrier.Provider17Track, op, carrier.KindFromStatus(resp.StatusCode)).
			WithStatusCode(resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return carrier.NewProviderError(carrier.Provider17Track, op, carrier.ErrMalformed).WithCause(err)
	}
	return nil
}
