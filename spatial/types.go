// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strings"
)

const earthRadius = 6371e3 // meters

// Point represents a WGS84 geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a WKT representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%.8f %.8f)", p.Lng, p.Lat)
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Value implements the driver.Valuer interface for database serialization.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		p.Lat, p.Lng = 0, 0

		return nil
	}

	var s string

	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}

	// DuckDB spatial renders "POINT (lng lat)", String renders "POINT(lng lat)"
	s = strings.Replace(s, "POINT (", "POINT(", 1)
	_, err := fmt.Sscanf(s, "POINT(%f %f)", &p.Lng, &p.Lat)

	return err
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Bearing returns the initial great-circle bearing from p to other, in
// degrees clockwise from true north within [0, 360).
func (p *Point) Bearing(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi

	return math.Mod(deg+360, 360)
}

// Lerp linearly interpolates between p and other at fraction f in [0, 1].
// Latitude and longitude are interpolated independently.
func (p Point) Lerp(other Point, f float64) Point {
	return Point{
		Lat: p.Lat + (other.Lat-p.Lat)*f,
		Lng: p.Lng + (other.Lng-p.Lng)*f,
	}
}

// Position is a Point with an optional elevation in meters.
type Position struct {
	Point
	Elevation *float64 `json:"elevation,omitempty"`
}

// HasElevation reports whether the elevation is known.
func (p Position) HasElevation() bool {
	return p.Elevation != nil
}

// Float returns a pointer to a copy of f.
func Float(f float64) *float64 {
	return &f
}
