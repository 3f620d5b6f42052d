// Package geo holds the straight-line geometry used by pool matching.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

var ErrEmptyPointSet = errors.New("geo: empty point set")

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite coordinate inside the WGS84 ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Distance returns the great-circle distance between a and b in kilometres (haversine).
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	angle := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * angle
}

// Centroid returns the arithmetic mean of each axis.
func Centroid(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, ErrEmptyPointSet
	}

	var c Point
	for _, p := range points {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	n := float64(len(points))
	c.Lat /= n
	c.Lng /= n

	return c, nil
}

// Bounds returns the axis-aligned bounding box of points.
func Bounds(points []Point) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, ErrEmptyPointSet
	}

	b := BoundingBox{
		MinLat: points[0].Lat,
		MaxLat: points[0].Lat,
		MinLng: points[0].Lng,
		MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}

	return b, nil
}

// MaxSpread returns the largest distance from center to any of points.
func MaxSpread(center Point, points []Point) float64 {
	var spread float64
	for _, p := range points {
		if d := Distance(center, p); d > spread {
			spread = d
		}
	}
	return spread
}

// Around returns a box that encloses the circle of radiusKm around p.
// It over-approximates near the poles and is meant as a cheap prefilter.
func Around(p Point, radiusKm float64) BoundingBox {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	dLng := 180.0
	if cosLat > 1e-6 {
		dLng = math.Min(180, dLat/cosLat)
	}
	return BoundingBox{
		MinLat: math.Max(-90, p.Lat-dLat),
		MaxLat: math.Min(90, p.Lat+dLat),
		MinLng: math.Max(-180, p.Lng-dLng),
		MaxLng: math.Min(180, p.Lng+dLng),
	}
}
