package aftership

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/TrackRisk/internal/integrations/carrier"
	"github.com/stretchr/testify/require"
)

const v4OK = `{
  "meta": {"code": 200},
  "data": {"tracking": {
    "slug": "ups",
    "tracking_number": "1Z999AA10123456784",
    "tag": "InTransit",
    "expected_delivery": "2025-01-06",
    "shipment_delivery_date": null,
    "checkpoints": [
      {"checkpoint_time": "2025-01-01T08:00:00", "city": "Chicago", "state": "IL", "country_name": "USA", "message": "Picked up", "tag": "InTransit"},
      {"checkpoint_time": "2025-01-02T10:00:00-08:00", "city": "Los Angeles", "state": "CA", "message": "Arrived at facility", "tag": "InTransit"}
    ]
  }}
}`

func TestClientV4_FetchRawTracking_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v4/trackings/ups/1Z999AA10123456784", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("aftership-api-key"))
		_, _ = w.Write([]byte(v4OK))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", VersionV4, time.Second)
	rec, err := c.FetchRawTracking(context.Background(), "1Z999AA10123456784", "ups")
	require.NoError(t, err)
	require.Equal(t, carrier.ProviderAfterShipV4, rec.Provider)
	require.Equal(t, "ups", rec.Carrier)
	require.Equal(t, "InTransit", rec.StatusToken)
	require.Equal(t, "2025-01-06", rec.ExpectedAt)
	require.Empty(t, rec.DeliveredAt)

	// перевёрнуто: последний чекпоинт первым
	require.Len(t, rec.Events, 2)
	require.Equal(t, "Los Angeles", rec.Events[0].City)
	require.Equal(t, "USA", rec.Events[1].Country)
}

func TestClientV4_FetchRawTracking_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"meta":{"code":4004,"message":"Tracking does not exist.","type":"NotFound"},"data":{}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", VersionV4, time.Second).FetchRawTracking(context.Background(), "X", "usps")
	require.ErrorIs(t, err, carrier.ErrNotFound)
}

func TestClientV4_FetchRawTracking_ServerErrorNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", VersionV4, time.Second).FetchRawTracking(context.Background(), "X", "usps")
	require.ErrorIs(t, err, carrier.ErrUnavailable)
}

func TestClientV4_FetchRawTracking_MissingTracking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"code":200},"data":{}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", VersionV4, time.Second).FetchRawTracking(context.Background(), "X", "usps")
	require.ErrorIs(t, err, carrier.ErrMalformed)
}

func TestClientV4_RegisterTracking(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/v4/trackings", r.URL.Path)
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "X", body["tracking"]["tracking_number"])
		require.Equal(t, "usps", body["tracking"]["slug"])

		if calls == 1 {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"meta":{"code":201},"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"meta":{"code":4003,"message":"Tracking already exists.","type":"BadRequest"},"data":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", VersionV4, time.Second)
	require.NoError(t, c.RegisterTracking(context.Background(), "X", "usps"))
	require.NoError(t, c.RegisterTracking(context.Background(), "X", "usps"))
	require.Equal(t, 2, calls)
}

func TestClientV4_RegisterTracking_OtherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"meta":{"code":401,"message":"Invalid API key.","type":"Unauthorized"},"data":{}}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "k", VersionV4, time.Second).RegisterTracking(context.Background(), "X", "usps")
	require.ErrorIs(t, err, carrier.ErrUnavailable)
	require.Contains(t, err.Error(), "Invalid API key")
}

const v2024OK = `{
  "meta": {"code": 200},
  "data": {"trackings": [{
    "slug": "usps",
    "tracking_number": "9400100000000000000000",
    "tag": "Delivered",
    "shipment_delivery_date": "2025-01-03T15:00:00Z",
    "courier_estimated_delivery_date": {"estimated_delivery_date": "2025-01-03"},
    "checkpoints": [
      {"checkpoint_time": "2025-01-02T10:00:00Z", "city": "Denver", "state": "CO", "country_region_name": "USA", "message": "In transit", "tag": "InTransit"},
      {"checkpoint_time": "2025-01-03T15:00:00Z", "city": "Austin", "state": "TX", "country_region_name": "USA", "message": "Delivered", "tag": "Delivered"}
    ]
  }]}
}`

func TestClient2024_FetchRawTracking_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tracking/2024-07/trackings", r.URL.Path)
		require.Equal(t, "9400100000000000000000", r.URL.Query().Get("tracking_numbers"))
		require.Equal(t, "k", r.Header.Get("as-api-key"))
		_, _ = w.Write([]byte(v2024OK))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", Version2024, time.Second)
	require.Equal(t, Version2024, c.Version())

	rec, err := c.FetchRawTracking(context.Background(), "9400100000000000000000", "usps")
	require.NoError(t, err)
	require.Equal(t, carrier.ProviderAfterShip2024, rec.Provider)
	require.Equal(t, "Delivered", rec.StatusToken)
	require.Equal(t, "2025-01-03T15:00:00Z", rec.DeliveredAt)
	require.Equal(t, "2025-01-03", rec.ExpectedAt)
	require.Equal(t, "Austin", rec.Events[0].City)
	require.Equal(t, "USA", rec.Events[0].Country)
}

func TestClient2024_FetchRawTracking_EmptyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"code":200},"data":{"trackings":[]}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", Version2024, time.Second).FetchRawTracking(context.Background(), "X", "usps")
	require.ErrorIs(t, err, carrier.ErrNotFound)
}

func TestClient2024_RegisterTracking_AlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tracking/2024-07/trackings", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("as-api-key"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"meta":{"code":4003,"message":"Tracking already exists."}}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "k", Version2024, time.Second).RegisterTracking(context.Background(), "X", "usps"))
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(v4OK))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", VersionV4, 20*time.Millisecond).FetchRawTracking(context.Background(), "X", "ups")
	require.ErrorIs(t, err, carrier.ErrUnavailable)
}

func TestClient_NoAPIKey_Offline(t *testing.T) {
	c := New("", "", "", 0)
	require.Equal(t, VersionV4, c.Version())
	require.NoError(t, c.RegisterTracking(context.Background(), "X", "ups"))

	rec, err := c.FetchRawTracking(context.Background(), "X", "ups")
	require.NoError(t, err)
	require.Equal(t, carrier.ProviderMock, rec.Provider)
}
