package models

import "github.com/Temutjin2k/ride-pooling/pkg/geo"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

func (l Location) Point() geo.Point {
	return geo.Point{Lat: l.Latitude, Lng: l.Longitude}
}

func LocationFromPoint(p geo.Point) Location {
	return Location{Latitude: p.Lat, Longitude: p.Lng}
}
