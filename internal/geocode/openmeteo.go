package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/pkg/http/client"
)

const (
	// forwardResultLimit caps how many disambiguation candidates we surface.
	forwardResultLimit = 5

	defaultCacheSize = 128
	defaultCacheTTL  = 6 * time.Hour
)

type cacheEntry struct {
	places    []models.Place
	expiresAt time.Time
}

// OpenMeteoGeocoder resolves queries through the Open-Meteo geocoding API and
// coordinates through the Nominatim reverse endpoint. Forward lookups are
// cached in an LRU so repeated checks with an unchanged query never hit the
// network.
type OpenMeteoGeocoder struct {
	forwardClient client.Interface
	reverseClient client.Interface
	cache         *lru.Cache[string, cacheEntry]
	cacheTTL      time.Duration
	now           func() time.Time
}

func NewOpenMeteoGeocoder(forwardClient, reverseClient client.Interface) (*OpenMeteoGeocoder, error) {
	cache, err := lru.New[string, cacheEntry](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating geocode cache: %w", err)
	}

	return &OpenMeteoGeocoder{
		forwardClient: forwardClient,
		reverseClient: reverseClient,
		cache:         cache,
		cacheTTL:      defaultCacheTTL,
		now:           time.Now,
	}, nil
}

type openMeteoGeoResult struct {
	Name      string  `json:"name"`
	Admin1    string  `json:"admin1"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type openMeteoGeoResponse struct {
	Results []openMeteoGeoResult `json:"results"`
}

func (g *OpenMeteoGeocoder) Forward(ctx context.Context, query string) ([]models.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &LocationNotFoundError{Query: query}
	}

	if entry, ok := g.cache.Get(query); ok {
		if g.now().Before(entry.expiresAt) {
			log.Debug().Str("query", query).Msg("Cache HIT for geocode query")
			return entry.places, nil
		}
		g.cache.Remove(query)
	}
	log.Debug().Str("query", query).Msg("Cache MISS for geocode query, calling geocoding API")

	path := fmt.Sprintf("/v1/search?name=%s&count=%d&language=en&format=json",
		url.QueryEscape(query), forwardResultLimit)

	resp, err := g.forwardClient.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetching geocode results: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("geocoding API returned status %d", resp.StatusCode)
	}

	var decoded openMeteoGeoResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding geocode response: %w", err)
	}

	if len(decoded.Results) == 0 {
		return nil, &LocationNotFoundError{Query: query}
	}

	places := make([]models.Place, len(decoded.Results))
	for i, r := range decoded.Results {
		places[i] = models.Place{
			Coordinate:  models.NewCoordinate(r.Latitude, r.Longitude),
			DisplayName: displayName(r),
		}
	}

	g.cache.Add(query, cacheEntry{places: places, expiresAt: g.now().Add(g.cacheTTL)})

	return places, nil
}

func (g *OpenMeteoGeocoder) Reverse(ctx context.Context, coord models.Coordinate) (string, error) {
	path := fmt.Sprintf("/reverse?lat=%.4f&lon=%.4f&format=jsonv2",
		coord.Latitude, coord.Longitude)

	resp, err := g.reverseClient.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("fetching reverse geocode: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("reverse geocoding returned status %d", resp.StatusCode)
	}

	var decoded struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", fmt.Errorf("decoding reverse geocode response: %w", err)
	}

	if decoded.DisplayName == "" {
		// Best effort only; fall back to raw coordinates.
		return coord.String(), nil
	}
	return decoded.DisplayName, nil
}

func displayName(r openMeteoGeoResult) string {
	parts := []string{r.Name}
	if r.Admin1 != "" {
		parts = append(parts, r.Admin1)
	}
	if r.Country != "" {
		parts = append(parts, r.Country)
	}
	return strings.Join(parts, ", ")
}
