package checker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/telemetry"
	"github.com/BearBump/TrackRisk/internal/tracking"
	"github.com/pkg/errors"
)

const DefaultTimeout = 15 * time.Second

var ErrEmptyTrackingNumber = errors.New("trackingNumber is required")

// Checker runs one tracking query through the provider, the normalizer and
// the risk classifier. Provider failures never surface as errors: the caller
// gets the unknown/yellow fallback with Error set.
type Checker struct {
	client   carrier.Client
	provider string
	timeout  time.Duration
	now      func() time.Time
	norm     *tracking.Normalizer
	metrics  *telemetry.Metrics
}

type Option func(*Checker)

// WithProviderName задаёт метку провайдера для логов и метрик.
func WithProviderName(name string) Option {
	return func(c *Checker) { c.provider = name }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

func New(client carrier.Client, opts ...Option) *Checker {
	c := &Checker{
		client:   client,
		provider: string(carrier.ProviderMock),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.norm = tracking.NewNormalizer(c.now)
	return c
}

func (c *Checker) Provider() string { return c.provider }

// Check returns the normalized status and risk for q. The only error is
// ErrEmptyTrackingNumber.
func (c *Checker) Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error) {
	number := strings.TrimSpace(q.TrackingNumber)
	if number == "" {
		return models.NormalizedTracking{}, ErrEmptyTrackingNumber
	}
	slug := tracking.ResolveCarrier(q.CarrierHint, number)

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := carrier.Fetch(cctx, c.client, number, slug)
	if err != nil {
		kind := carrier.KindLabel(err)
		slog.Warn("tracking check failed",
			"provider", c.provider,
			"carrier", slug,
			"tracking_number", number,
			"kind", kind,
			"err", err,
		)
		c.metrics.RecordFailure(c.provider, kind)
		res := c.norm.Failure(slug, err)
		c.metrics.RecordCheck(c.provider, string(res.Status), string(res.RiskLevel), time.Since(start))
		return res, nil
	}
	if raw.Carrier == "" {
		raw.Carrier = slug
	}

	res := c.norm.Normalize(raw)
	c.metrics.RecordCheck(c.provider, string(res.Status), string(res.RiskLevel), time.Since(start))
	slog.Debug("tracking checked",
		"provider", c.provider,
		"carrier", res.Carrier,
		"status", res.Status,
		"risk", res.RiskLevel,
	)
	return res, nil
}
