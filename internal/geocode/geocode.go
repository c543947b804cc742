package geocode

import (
	"context"
	"fmt"

	"github.com/rainwatch/rainwatch/internal/models"
)

// Geocoder resolves free-form location queries to coordinates and back.
type Geocoder interface {
	// Forward resolves a query to candidate places, best match first.
	// An empty result is reported as a LocationNotFoundError.
	Forward(ctx context.Context, query string) ([]models.Place, error)
	// Reverse resolves a coordinate to a best-effort display name.
	Reverse(ctx context.Context, coord models.Coordinate) (string, error)
}

// LocationNotFoundError signals that forward geocoding yielded no result for
// the query. Recoverable: the agent surfaces it as a status message and waits
// for the next poll cycle.
type LocationNotFoundError struct {
	Query string
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("location not found: %s", e.Query)
}
