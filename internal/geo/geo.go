// Package geo wraps the external geocoding and distance providers and
// implements the expanding-radius candidate search.
package geo

import (
	"context"
	"math"

	"github.com/errandly/backend/internal/models"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Resolver geocodes free-text addresses and reverse-geocodes coordinates.
// Both directions are idempotent and cacheable by input.
type Resolver interface {
	Resolve(ctx context.Context, text string) (Point, string, error)
	Reverse(ctx context.Context, p Point) (string, error)
}

// DistanceProvider computes road (or great-circle) distances from one origin
// to a batch of destinations, in kilometers, preserving order.
type DistanceProvider interface {
	DistanceKm(ctx context.Context, from Point, to []Point) ([]float64, error)
}

// Haversine is the in-process DistanceProvider used when no external routing
// provider is configured.
type Haversine struct{}

const earthRadiusKm = 6371.0

func (Haversine) DistanceKm(_ context.Context, from Point, to []Point) ([]float64, error) {
	out := make([]float64, len(to))
	for i, p := range to {
		out[i] = haversineKm(from, p)
	}
	return out, nil
}

func haversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// PointOf extracts the coordinate from a stored location.
func PointOf(l models.Location) Point {
	return Point{Lat: l.Lat, Lon: l.Lon}
}
