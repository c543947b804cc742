package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainwatch/rainwatch/internal/agent"
	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/internal/settings"
)

type fakeFetcher struct{}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, lookaheadHours int) (*models.ForecastSeries, models.Place, error) {
	points := []models.ForecastPoint{{
		Timestamp:          time.Now().Add(time.Hour),
		ProbabilityPercent: 70,
		RainfallMm:         0.4,
	}}
	return &models.ForecastSeries{
			AllPoints:        points,
			Timezone:         time.UTC,
			LookaheadHours:   lookaheadHours,
			WindowPoints:     points,
			Next24HourPoints: points,
		}, models.Place{
			Coordinate:  models.NewCoordinate(47.6062, -122.3321),
			DisplayName: "Seattle, Washington, United States",
		}, nil
}

func (f *fakeFetcher) Invalidate() {}

type fakeNotifier struct{}

func (n *fakeNotifier) RequestPermission(_ context.Context) bool { return true }
func (n *fakeNotifier) Send(_ context.Context, _, _ string)      {}

type fakeGeocoder struct {
	places []models.Place
	err    error
}

func (g *fakeGeocoder) Forward(_ context.Context, _ string) ([]models.Place, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.places, nil
}

func (g *fakeGeocoder) Reverse(_ context.Context, coord models.Coordinate) (string, error) {
	return coord.String(), nil
}

func newTestServer(t *testing.T, cfg settings.AgentConfig, geocoder geocode.Geocoder) *httptest.Server {
	t.Helper()

	a := agent.New(settings.NewMemoryStore(), &fakeFetcher{}, &fakeNotifier{}, cfg)
	server := httptest.NewServer(NewHandler(a, geocoder).Router())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func configuredAgent() settings.AgentConfig {
	return settings.AgentConfig{
		LocationQuery:       "Seattle",
		PollIntervalSeconds: 1800,
		LookaheadHours:      6,
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

	status, body := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

	status, body := doJSON(t, http.MethodGet, server.URL+"/api/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "status", body["responseType"])
	assert.Equal(t, string(agent.StateInactive), body["state"])
	assert.Equal(t, false, body["isCheckInFlight"])
}

func TestEnableDisable(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

	status, body := doJSON(t, http.MethodPost, server.URL+"/api/agent/enable", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(agent.StateActiveIdle), body["state"])
	assert.NotNil(t, body["lastVerdict"])
	assert.NotNil(t, body["nextScheduledCheckAt"])

	status, body = doJSON(t, http.MethodPost, server.URL+"/api/agent/disable", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(agent.StateInactive), body["state"])
	assert.Nil(t, body["nextScheduledCheckAt"])
}

func TestEnableWithoutLocation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, settings.AgentConfig{
		PollIntervalSeconds: 1800,
		LookaheadHours:      6,
	}, &fakeGeocoder{})

	status, body := doJSON(t, http.MethodPost, server.URL+"/api/agent/enable", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", body["responseType"])
}

func TestCheckWhileInactive(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

	status, body := doJSON(t, http.MethodPost, server.URL+"/api/agent/check", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "error", body["responseType"])
}

func TestConfigUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		update     map[string]interface{}
		wantStatus int
	}{
		{
			name:       "valid partial update",
			update:     map[string]interface{}{"locationQuery": "Portland", "pollIntervalSeconds": 10800},
			wantStatus: http.StatusOK,
		},
		{
			name:       "poll interval outside enumerated set",
			update:     map[string]interface{}{"pollIntervalSeconds": 1234},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "lookahead outside enumerated set",
			update:     map[string]interface{}{"lookaheadHours": 7},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "notify flag only",
			update:     map[string]interface{}{"notifyOnDryResult": true},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

			status, _ := doJSON(t, http.MethodPut, server.URL+"/api/config", tt.update)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestLocations(t *testing.T) {
	t.Parallel()

	t.Run("results", func(t *testing.T) {
		t.Parallel()

		geocoder := &fakeGeocoder{places: []models.Place{{
			Coordinate:  models.NewCoordinate(47.6062, -122.3321),
			DisplayName: "Seattle, Washington, United States",
		}}}
		server := newTestServer(t, configuredAgent(), geocoder)

		status, body := doJSON(t, http.MethodGet, server.URL+"/api/locations?q=Seattle", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "locations", body["responseType"])
		assert.Len(t, body["locations"], 1)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		geocoder := &fakeGeocoder{err: &geocode.LocationNotFoundError{Query: "Atlantis"}}
		server := newTestServer(t, configuredAgent(), geocoder)

		status, body := doJSON(t, http.MethodGet, server.URL+"/api/locations?q=Atlantis", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "error", body["responseType"])
	})

	t.Run("missing query", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

		status, _ := doJSON(t, http.MethodGet, server.URL+"/api/locations", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("reverse lookup by coordinates", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

		status, body := doJSON(t, http.MethodGet, server.URL+"/api/locations?lat=47.6062&lon=-122.3321", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "locations", body["responseType"])

		locations, ok := body["locations"].([]interface{})
		require.True(t, ok)
		require.Len(t, locations, 1)
		place, ok := locations[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "47.6062,-122.3321", place["displayName"])
	})

	t.Run("non-numeric coordinates", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(t, configuredAgent(), &fakeGeocoder{})

		status, _ := doJSON(t, http.MethodGet, server.URL+"/api/locations?lat=abc&lon=1.0", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
