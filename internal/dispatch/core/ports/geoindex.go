package ports

import "context"

// IGeoIndex is an optional fast radius prefilter mirroring driver locations.
// Postgres stays authoritative; a stale mirror only widens the candidate set
// before the in-process haversine check.
type IGeoIndex interface {
	Upsert(ctx context.Context, driverId string, lat, lon float64) error
	WithinRadius(ctx context.Context, lat, lon, radiusKm float64) ([]string, error)
}
