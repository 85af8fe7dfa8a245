// Package tracking turns provider tracking data into a normalized status and
// a delivery-risk tier. Everything here is pure and safe for concurrent use.
package tracking

import (
	"time"

	"github.com/BearBump/TrackRisk/internal/models"
)

const (
	InTransitYellowAfter = 48 * time.Hour
	InTransitRedAfter    = 72 * time.Hour
)

// ClassifyRisk returns the risk tier for a shipment. First matching rule wins.
// Pre-transit shipments stay green regardless of age.
func ClassifyRisk(status models.TrackingStatus, lastUpdate, now time.Time) models.RiskLevel {
	switch status {
	case models.StatusException, models.StatusDeliveryFailed, models.StatusLost:
		return models.RiskRed
	case models.StatusDelivered, models.StatusOutForDelivery:
		return models.RiskGreen
	case models.StatusPreTransit:
		return models.RiskGreen
	case models.StatusInTransit:
		since := now.Sub(lastUpdate)
		switch {
		case since > InTransitRedAfter:
			return models.RiskRed
		case since > InTransitYellowAfter:
			return models.RiskYellow
		default:
			return models.RiskGreen
		}
	case models.StatusUnknown:
		return models.RiskYellow
	default:
		return models.RiskGreen
	}
}
