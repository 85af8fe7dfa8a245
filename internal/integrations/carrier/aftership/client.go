package aftership

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/mock"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.aftership.com"

	VersionV4   = "v4"
	Version2024 = "2024-07"

	// meta.code 4003: "Tracking already exists."
	metaAlreadyExists = 4003
	metaNotFound      = 4004
)

// Client talks to AfterShip. The API version decides paths, auth header and
// response shape; both versions share the tag vocabulary.
type Client struct {
	baseURL string
	apiKey  string
	version string
	httpc   *http.Client
}

func New(baseURL, apiKey, version string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if version != Version2024 {
		version = VersionV4
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		version: version,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Version() string { return c.version }

func (c *Client) provider() carrier.Provider {
	if c.version == Version2024 {
		return carrier.ProviderAfterShip2024
	}
	return carrier.ProviderAfterShipV4
}

type meta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type checkpoint struct {
	CheckpointTime    string `json:"checkpoint_time"`
	City              string `json:"city"`
	State             string `json:"state"`
	CountryName       string `json:"country_name"`
	CountryRegionName string `json:"country_region_name"`
	Location          string `json:"location"`
	Message           string `json:"message"`
	Tag               string `json:"tag"`
}

func (c *Client) RegisterTracking(ctx context.Context, trackingNumber, carrierSlug string) error {
	if c.apiKey == "" {
		return nil
	}
	var (
		path string
		body any
	)
	if c.version == Version2024 {
		path = "/tracking/2024-07/trackings"
		body = map[string]string{"tracking_number": trackingNumber, "slug": carrierSlug}
	} else {
		path = "/v4/trackings"
		body = map[string]any{"tracking": map[string]string{"tracking_number": trackingNumber, "slug": carrierSlug}}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	var env struct {
		Meta meta `json:"meta"`
	}
	status, err := c.do(ctx, "create", http.MethodPost, path, b, &env)
	if err != nil {
		return err
	}
	if env.Meta.Code == metaAlreadyExists {
		return nil
	}
	if status/100 != 2 {
		return carrier.NewProviderError(c.provider(), "create", carrier.KindFromStatus(status)).
			WithStatusCode(status).
			WithCause(errors.New(env.Meta.Message))
	}
	return nil
}

func (c *Client) FetchRawTracking(ctx context.Context, trackingNumber, carrierSlug string) (carrier.RawRecord, error) {
	if c.apiKey == "" {
		return mock.OfflineRecord(trackingNumber, carrierSlug), nil
	}
	if c.version == Version2024 {
		return c.fetch2024(ctx, trackingNumber, carrierSlug)
	}
	return c.fetchV4(ctx, trackingNumber, carrierSlug)
}

func (c *Client) notFound(op string, m meta) error {
	return carrier.NewProviderError(c.provider(), op, carrier.ErrNotFound).
		WithStatusCode(http.StatusNotFound).
		WithCause(errors.New(m.Message))
}

// do выполняет запрос и декодирует JSON-конверт. Не-2xx ответы тоже декодируются:
// AfterShip кладёт причину в meta. Ошибкой считается только то, что не удалось разобрать.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.version == Version2024 {
		req.Header.Set("as-api-key", c.apiKey)
	} else {
		req.Header.Set("aftership-api-key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, carrier.NewProviderError(c.provider(), op, carrier.ErrUnavailable).WithCause(err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode/100 != 2 {
			return resp.StatusCode, carrier.NewProviderError(c.provider(), op, carrier.KindFromStatus(resp.StatusCode)).
				WithStatusCode(resp.StatusCode)
		}
		return resp.StatusCode, carrier.NewProviderError(c.provider(), op, carrier.ErrMalformed).WithCause(err)
	}
	return resp.StatusCode, nil
}

func toRawEvents(cps []checkpoint) []carrier.RawEvent {
	evs := make([]carrier.RawEvent, 0, len(cps))
	for _, cp := range cps {
		country := cp.CountryRegionName
		if country == "" {
			country = cp.CountryName
		}
		evs = append(evs, carrier.RawEvent{
			Time:        cp.CheckpointTime,
			StatusToken: cp.Tag,
			Message:     cp.Message,
			City:        cp.City,
			State:       cp.State,
			Country:     country,
			Location:    cp.Location,
		})
	}
	// AfterShip отдаёт чекпоинты от старых к новым.
	return carrier.ReverseEvents(evs)
}
