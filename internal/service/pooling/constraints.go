package pooling

import (
	"github.com/Temutjin2k/ride-pooling/internal/domain/models"
	"github.com/Temutjin2k/ride-pooling/pkg/geo"
)

// CanAccept reports whether ride fits into pool's remaining seats and luggage.
func CanAccept(pool *models.Pool, ride *models.Ride, limits models.PoolLimits) bool {
	return pool.SeatsOccupied+1 <= limits.MaxSeats &&
		pool.LuggageTotal+ride.Luggage <= limits.MaxLuggage
}

// Detour estimates how far the pool footprint spreads once ride is admitted:
// the mean of the largest pickup and the largest dropoff distance from their centroids.
// It is a centroid-spread proxy, not a routed distance.
func Detour(members []*models.Ride, ride *models.Ride) float64 {
	pickups := make([]geo.Point, 0, len(members)+1)
	dropoffs := make([]geo.Point, 0, len(members)+1)
	for _, m := range members {
		pickups = append(pickups, m.Pickup.Point())
		dropoffs = append(dropoffs, m.Dropoff.Point())
	}
	pickups = append(pickups, ride.Pickup.Point())
	dropoffs = append(dropoffs, ride.Dropoff.Point())

	return (spread(pickups) + spread(dropoffs)) / 2
}

func spread(points []geo.Point) float64 {
	center, err := geo.Centroid(points)
	if err != nil {
		return 0
	}
	return geo.MaxSpread(center, points)
}

// poolGeometry derives the search centroid (member pickups) and the footprint
// (every pickup and dropoff) of a pool.
func poolGeometry(members []*models.Ride) (geo.Point, geo.BoundingBox, error) {
	pickups := make([]geo.Point, 0, len(members))
	all := make([]geo.Point, 0, 2*len(members))
	for _, m := range members {
		pickups = append(pickups, m.Pickup.Point())
		all = append(all, m.Pickup.Point(), m.Dropoff.Point())
	}

	centroid, err := geo.Centroid(pickups)
	if err != nil {
		return geo.Point{}, geo.BoundingBox{}, err
	}
	bounds, err := geo.Bounds(all)
	if err != nil {
		return geo.Point{}, geo.BoundingBox{}, err
	}

	return centroid, bounds, nil
}
