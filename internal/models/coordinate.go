package models

import "fmt"

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate builds a Coordinate, clamping both axes to their valid ranges.
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{
		Latitude:  clamp(lat, -90, 90),
		Longitude: clamp(lon, -180, 180),
	}
}

// String renders the coordinate with the 4-decimal precision used on the
// provider request line.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Place is a geocoding result: a coordinate plus the human-readable name the
// geocoder resolved for it.
type Place struct {
	Coordinate  Coordinate `json:"coordinate"`
	DisplayName string     `json:"displayName"`
}
