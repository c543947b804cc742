package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/pkg/http/client"
)

type stubClient struct {
	lastPath string
	calls    int
	respond  func(path string) (*client.Response, error)
}

func (s *stubClient) Get(_ context.Context, path string) (*client.Response, error) {
	s.lastPath = path
	s.calls++
	return s.respond(path)
}

type stubGeocoder struct {
	calls  int
	places []models.Place
	err    error
}

func (g *stubGeocoder) Forward(_ context.Context, query string) ([]models.Place, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(g.places) == 0 {
		return nil, &geocode.LocationNotFoundError{Query: query}
	}
	return g.places, nil
}

func (g *stubGeocoder) Reverse(_ context.Context, coord models.Coordinate) (string, error) {
	return coord.String(), nil
}

var testNow = time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)

func jsonResponse(t *testing.T, body interface{}) *client.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return &client.Response{StatusCode: 200, Body: data}
}

// providerBody builds a well-formed response with hourly stamps starting at
// the top of the hour after testNow, in UTC.
func providerBody(hours int, probs []float64, rain []float64) map[string]interface{} {
	start := testNow.Truncate(time.Hour).Add(time.Hour)
	times := make([]string, hours)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04")
	}
	hourly := map[string]interface{}{"time": times}
	if probs != nil {
		hourly["precipitation_probability"] = probs
	}
	if rain != nil {
		hourly["rain"] = rain
	}
	return map[string]interface{}{
		"timezone":           "UTC",
		"utc_offset_seconds": 0,
		"hourly":             hourly,
	}
}

func newTestService(t *testing.T, respond func(path string) (*client.Response, error)) (*Service, *stubClient, *stubGeocoder) {
	t.Helper()
	httpStub := &stubClient{respond: respond}
	geo := &stubGeocoder{places: []models.Place{{
		Coordinate:  models.NewCoordinate(47.6062, -122.3321),
		DisplayName: "Seattle, Washington, United States",
	}}}
	svc := NewService(httpStub, geo)
	svc.now = func() time.Time { return testNow }
	return svc, httpStub, geo
}

func TestFetchRequestLine(t *testing.T) {
	t.Parallel()

	svc, httpStub, _ := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(6, []float64{0, 0, 0, 0, 0, 0}, nil)), nil
	})

	_, _, err := svc.Fetch(context.Background(), "Seattle", 48)
	require.NoError(t, err)

	assert.Equal(t,
		"/v1/forecast?latitude=47.6062&longitude=-122.3321"+
			"&hourly=precipitation_probability,rain&forecast_days=2&timezone=auto",
		httpStub.lastPath)
}

func TestFetchForecastDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lookahead int
		wantDays  int
	}{
		{lookahead: 6, wantDays: 1},
		{lookahead: 12, wantDays: 1},
		{lookahead: 24, wantDays: 1},
		{lookahead: 48, wantDays: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%dh", tt.lookahead), func(t *testing.T) {
			t.Parallel()

			svc, httpStub, _ := newTestService(t, func(string) (*client.Response, error) {
				return jsonResponse(t, providerBody(4, nil, nil)), nil
			})

			_, _, err := svc.Fetch(context.Background(), "Seattle", tt.lookahead)
			require.NoError(t, err)
			assert.Contains(t, httpStub.lastPath, fmt.Sprintf("forecast_days=%d", tt.wantDays))
		})
	}
}

func TestFetchCoordinateReuse(t *testing.T) {
	t.Parallel()

	svc, _, geo := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(4, nil, nil)), nil
	})

	ctx := context.Background()
	_, _, err := svc.Fetch(ctx, "Seattle", 6)
	require.NoError(t, err)
	_, _, err = svc.Fetch(ctx, "Seattle", 6)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls, "identical query should not re-geocode")

	// A changed query resolves again.
	_, _, err = svc.Fetch(ctx, "Portland", 6)
	require.NoError(t, err)
	assert.Equal(t, 2, geo.calls)

	// Invalidate forces re-resolution even for the same query.
	svc.Invalidate()
	_, _, err = svc.Fetch(ctx, "Portland", 6)
	require.NoError(t, err)
	assert.Equal(t, 3, geo.calls)
}

func TestFetchLocationNotFound(t *testing.T) {
	t.Parallel()

	httpStub := &stubClient{respond: func(string) (*client.Response, error) {
		t.Fatal("provider must not be called when geocoding fails")
		return nil, nil
	}}
	svc := NewService(httpStub, &stubGeocoder{})
	svc.now = func() time.Time { return testNow }

	_, _, err := svc.Fetch(context.Background(), "Nowhereville", 6)
	var notFound *geocode.LocationNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFetchProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		respond func(path string) (*client.Response, error)
	}{
		{
			name: "transport failure",
			respond: func(string) (*client.Response, error) {
				return nil, errors.New("connection refused")
			},
		},
		{
			name: "non-200 status",
			respond: func(string) (*client.Response, error) {
				return &client.Response{StatusCode: 503, Body: []byte("busy")}, nil
			},
		},
		{
			name: "undecodable body",
			respond: func(string) (*client.Response, error) {
				return &client.Response{StatusCode: 200, Body: []byte("not json")}, nil
			},
		},
		{
			name: "no hourly data",
			respond: func(string) (*client.Response, error) {
				return &client.Response{StatusCode: 200, Body: []byte(`{"timezone":"UTC","hourly":{"time":[]}}`)}, nil
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newTestService(t, tt.respond)
			_, _, err := svc.Fetch(context.Background(), "Seattle", 6)

			var provider *ProviderError
			require.ErrorAs(t, err, &provider)
		})
	}
}

func TestFetchMissingArraysTreatedAsZero(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(3, nil, []float64{0.5, 0, 0})), nil
	})

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)
	require.Len(t, series.AllPoints, 3)

	// Probability array was absent: all zero, rainfall still present.
	assert.Equal(t, 0.0, series.AllPoints[0].ProbabilityPercent)
	assert.Equal(t, 0.5, series.AllPoints[0].RainfallMm)
}

func TestFetchMismatchedArraysTruncate(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(5, []float64{10, 20}, []float64{0, 0, 0})), nil
	})

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)
	assert.Len(t, series.AllPoints, 2)
}

func TestFetchDropsUnparseableTimestamps(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		body := providerBody(3, []float64{10, 20, 30}, nil)
		hourly := body["hourly"].(map[string]interface{})
		times := hourly["time"].([]string)
		times[1] = "garbage"
		return jsonResponse(t, body), nil
	})

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)
	require.Len(t, series.AllPoints, 2)
	assert.Equal(t, 10.0, series.AllPoints[0].ProbabilityPercent)
	assert.Equal(t, 30.0, series.AllPoints[1].ProbabilityPercent)
}

func TestFetchTimezoneFallback(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		body := providerBody(3, nil, nil)
		body["timezone"] = "Not/AZone"
		body["utc_offset_seconds"] = -28800
		return jsonResponse(t, body), nil
	})

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)

	_, offset := series.AllPoints[0].Timestamp.Zone()
	assert.Equal(t, -28800, offset)
}

func TestWindowPartitioning(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(48, nil, nil)), nil
	})

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)

	// Points run hourly from 12:00; now is 11:30. The 6h window covers
	// 12:00..17:00, the rolling day 12:00..next-day 11:00.
	assert.Len(t, series.WindowPoints, 6)
	assert.Len(t, series.Next24HourPoints, 24)
	for _, p := range series.WindowPoints {
		assert.False(t, p.Timestamp.Before(testNow))
		assert.False(t, p.Timestamp.After(testNow.Add(6*time.Hour)))
	}

	require.NoError(t, series.Validate())
}

func TestWindowStaleDataFallback(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(string) (*client.Response, error) {
		return jsonResponse(t, providerBody(48, nil, nil)), nil
	})
	// The provider's stamps are all in the past relative to this clock.
	svc.now = func() time.Time { return testNow.Add(96 * time.Hour) }

	series, _, err := svc.Fetch(context.Background(), "Seattle", 6)
	require.NoError(t, err)

	// Fallback: first N points rather than an empty window.
	require.Len(t, series.WindowPoints, 6)
	require.Len(t, series.Next24HourPoints, 24)
	assert.Equal(t, series.AllPoints[0], series.WindowPoints[0])
	require.NoError(t, series.Validate())
}
