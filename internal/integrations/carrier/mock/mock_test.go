package mock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchRawTracking_Offline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New().WithClock(func() time.Time { return now })

	rec, err := c.FetchRawTracking(context.Background(), "9400100000000000000000", "usps")
	require.NoError(t, err)
	require.Equal(t, carrier.ProviderMock, rec.Provider)
	require.Equal(t, string(models.StatusInTransit), rec.StatusToken)
	require.Len(t, rec.Events, 1)
	require.Equal(t, "Los Angeles", rec.Events[0].City)
	require.Equal(t, strconv.FormatInt(now.Unix(), 10), rec.Events[0].Time)
}

func TestClient_FetchRawTracking_ScenariosDeterministic(t *testing.T) {
	c := NewScenarios()
	a, err := c.FetchRawTracking(context.Background(), "A1", "ups")
	require.NoError(t, err)
	b, err := c.FetchRawTracking(context.Background(), "A1", "ups")
	require.NoError(t, err)

	require.Equal(t, a.StatusToken, b.StatusToken)
	require.True(t, models.TrackingStatus(a.StatusToken).Valid())
	require.Len(t, a.Events, 1)
}

func TestClient_Scenarios_DeliveredHasDeliveredAt(t *testing.T) {
	c := NewScenarios()
	for i := 0; i < 200; i++ {
		rec, err := c.FetchRawTracking(context.Background(), strconv.Itoa(i), "usps")
		require.NoError(t, err)
		if rec.StatusToken == string(models.StatusDelivered) {
			require.NotEmpty(t, rec.DeliveredAt)
		} else {
			require.Empty(t, rec.DeliveredAt)
		}
	}
}
