package providers

import (
	"strings"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/aftership"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/mock"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/seventeentrack"
	"github.com/pkg/errors"
)

// New builds the tracking-API client selected by cfg.Kind and returns the
// provider label used in logs and metrics.
func New(cfg config.ProviderConfig) (carrier.Client, carrier.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", string(carrier.ProviderMock):
		if cfg.MockScenarios {
			return mock.NewScenarios(), carrier.ProviderMock, nil
		}
		return mock.New(), carrier.ProviderMock, nil
	case string(carrier.Provider17Track):
		return seventeentrack.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout()), carrier.Provider17Track, nil
	case "aftership":
		c := aftership.New(cfg.BaseURL, cfg.APIKey, cfg.APIVersion, cfg.Timeout())
		if c.Version() == aftership.Version2024 {
			return c, carrier.ProviderAfterShip2024, nil
		}
		return c, carrier.ProviderAfterShipV4, nil
	default:
		return nil, "", errors.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
