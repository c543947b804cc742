package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/pkg/http/client"
)

// hourlyTimeLayout is the provider's local wall-clock stamp format. Stamps
// carry no zone suffix, so the resolved timezone must be applied during the
// parse, not after.
const hourlyTimeLayout = "2006-01-02T15:04"

// Fetcher resolves a location query and retrieves the hourly forecast series
// for it.
type Fetcher interface {
	Fetch(ctx context.Context, locationQuery string, lookaheadHours int) (*models.ForecastSeries, models.Place, error)
	Invalidate()
}

// Service is the production Fetcher against the Open-Meteo forecast API.
type Service struct {
	httpClient client.Interface
	geocoder   geocode.Geocoder
	now        func() time.Time

	// StrictValidation runs the series invariant checks after every fetch.
	// Enabled outside production builds only; a violation is logged, never
	// returned.
	StrictValidation bool

	mu            sync.Mutex
	resolvedQuery string
	resolvedPlace models.Place
}

func NewService(httpClient client.Interface, geocoder geocode.Geocoder) *Service {
	return &Service{
		httpClient: httpClient,
		geocoder:   geocoder,
		now:        time.Now,
	}
}

// openMeteoResponse is the provider response shape for the hourly forecast
// request. The probability and rain arrays are optional.
type openMeteoResponse struct {
	Timezone         string `json:"timezone"`
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Hourly           struct {
		Time                     []string  `json:"time"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		Rain                     []float64 `json:"rain"`
	} `json:"hourly"`
}

// Fetch geocodes the query, retrieves the hourly series, and partitions it
// into the lookahead and rolling-24h windows. A coordinate resolved for the
// identical query string on a prior call is reused without re-geocoding.
func (s *Service) Fetch(ctx context.Context, locationQuery string, lookaheadHours int) (*models.ForecastSeries, models.Place, error) {
	place, err := s.resolvePlace(ctx, locationQuery)
	if err != nil {
		return nil, models.Place{}, err
	}

	series, err := s.fetchSeries(ctx, place.Coordinate, lookaheadHours)
	if err != nil {
		return nil, models.Place{}, err
	}

	if s.StrictValidation {
		if err := series.Validate(); err != nil {
			log.Error().Err(err).Msg("Forecast series failed invariant check")
		}
	}

	return series, place, nil
}

// Invalidate forgets the memoized coordinate. Called when the location query
// changes so a stale resolution is never reused.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvedQuery = ""
	s.resolvedPlace = models.Place{}
}

func (s *Service) resolvePlace(ctx context.Context, query string) (models.Place, error) {
	s.mu.Lock()
	if s.resolvedQuery == query && s.resolvedQuery != "" {
		place := s.resolvedPlace
		s.mu.Unlock()
		log.Debug().Str("query", query).Msg("Reusing resolved coordinate")
		return place, nil
	}
	s.mu.Unlock()

	places, err := s.geocoder.Forward(ctx, query)
	if err != nil {
		return models.Place{}, err
	}
	place := places[0]

	s.mu.Lock()
	s.resolvedQuery = query
	s.resolvedPlace = place
	s.mu.Unlock()

	return place, nil
}

func (s *Service) fetchSeries(ctx context.Context, coord models.Coordinate, lookaheadHours int) (*models.ForecastSeries, error) {
	days := (lookaheadHours + 23) / 24
	if days < 1 {
		days = 1
	}

	path := fmt.Sprintf("/v1/forecast"+
		"?latitude=%.4f&longitude=%.4f"+
		"&hourly=precipitation_probability,rain"+
		"&forecast_days=%d&timezone=auto",
		coord.Latitude, coord.Longitude, days)

	resp, err := s.httpClient.Get(ctx, path)
	if err != nil {
		return nil, NewProviderError("fetching hourly forecast", err)
	}
	if resp.StatusCode != 200 {
		return nil, NewProviderError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var decoded openMeteoResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, NewProviderError("decoding response", err)
	}
	if len(decoded.Hourly.Time) == 0 {
		return nil, NewProviderError("response contains no hourly data", nil)
	}

	location := resolveTimezone(decoded.Timezone, decoded.UTCOffsetSeconds)

	points := zipHourly(decoded, location)
	if len(points) == 0 {
		return nil, NewProviderError("no hourly timestamps could be parsed", nil)
	}

	now := s.now().In(location)
	series := &models.ForecastSeries{
		AllPoints:        points,
		Timezone:         location,
		LookaheadHours:   lookaheadHours,
		WindowPoints:     windowPoints(points, now, time.Duration(lookaheadHours)*time.Hour, lookaheadHours),
		Next24HourPoints: windowPoints(points, now, 24*time.Hour, 24),
	}

	return series, nil
}

// resolveTimezone parses the provider's IANA zone name, falling back to a
// fixed zone built from the UTC-offset-in-seconds field when the name is not
// in the local zone database.
func resolveTimezone(name string, offsetSeconds int) *time.Location {
	if location, err := time.LoadLocation(name); err == nil {
		return location
	}
	log.Warn().Str("timezone", name).Int("utc_offset_seconds", offsetSeconds).
		Msg("Unknown timezone identifier, using fixed offset")
	return time.FixedZone(name, offsetSeconds)
}

// zipHourly zips the parallel time/probability/rain arrays into points,
// truncating to the shortest array. A missing probability or rain array is
// treated as all-zero. A stamp that fails to parse is dropped and counted; it
// never aborts the fetch.
func zipHourly(decoded openMeteoResponse, location *time.Location) []models.ForecastPoint {
	times := decoded.Hourly.Time
	probs := decoded.Hourly.PrecipitationProbability
	rain := decoded.Hourly.Rain

	n := len(times)
	if probs != nil && len(probs) < n {
		n = len(probs)
	}
	if rain != nil && len(rain) < n {
		n = len(rain)
	}

	points := make([]models.ForecastPoint, 0, n)
	dropped := 0
	for i := 0; i < n; i++ {
		timestamp, err := time.ParseInLocation(hourlyTimeLayout, times[i], location)
		if err != nil {
			dropped++
			continue
		}

		point := models.ForecastPoint{Timestamp: timestamp}
		if probs != nil {
			point.ProbabilityPercent = probs[i]
		}
		if rain != nil {
			point.RainfallMm = rain[i]
		}
		points = append(points, point)
	}

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(points)).
			Msg("Dropped unparseable hourly timestamps")
	}

	return points
}

// windowPoints selects points in [now, now+horizon]. When provider clock skew
// leaves the filtered window empty, it falls back to the first fallbackCount
// points so a verdict can still be produced from stale-but-present data.
func windowPoints(points []models.ForecastPoint, now time.Time, horizon time.Duration, fallbackCount int) []models.ForecastPoint {
	end := now.Add(horizon)

	var filtered []models.ForecastPoint
	for _, p := range points {
		if !p.Timestamp.Before(now) && !p.Timestamp.After(end) {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) == 0 {
		if fallbackCount > len(points) {
			fallbackCount = len(points)
		}
		log.Debug().Int("fallback_count", fallbackCount).
			Msg("Filtered window empty, falling back to leading points")
		return points[:fallbackCount]
	}

	return filtered
}
