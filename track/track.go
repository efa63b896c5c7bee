// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package track loads GPS tracks and locates instants along them.
package track

import (
	"sort"
	"time"

	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/spatial"
)

// TrackPoint is a timestamped position sample.
type TrackPoint struct {
	Time time.Time `json:"time"`
	spatial.Position
}

// Track is an immutable time ordered sequence of track points. Points with
// equal timestamps keep their input order.
type Track struct {
	name   string
	points []TrackPoint
}

// New builds a Track from points, normalising timestamps to UTC and sorting
// them. The slice is copied.
func New(points []TrackPoint) (*Track, error) {
	if len(points) == 0 {
		return nil, geoerr.EmptyTrack("")
	}

	cp := make([]TrackPoint, len(points))
	for i, p := range points {
		p.Time = p.Time.UTC()
		cp[i] = p
	}

	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Time.Before(cp[j].Time)
	})

	return &Track{points: cp}, nil
}

// Name is the name of the first GPX track, if any.
func (t *Track) Name() string { return t.name }

// Len returns the number of points.
func (t *Track) Len() int { return len(t.points) }

// Points returns a copy of the points.
func (t *Track) Points() []TrackPoint {
	cp := make([]TrackPoint, len(t.points))
	copy(cp, t.points)

	return cp
}

// Start returns the first timestamp.
func (t *Track) Start() time.Time { return t.points[0].Time }

// End returns the last timestamp.
func (t *Track) End() time.Time { return t.points[len(t.points)-1].Time }

// Covers reports whether instant lies within [Start, End].
func (t *Track) Covers(instant time.Time) bool {
	return !instant.Before(t.Start()) && !instant.After(t.End())
}

// Center returns the mean position of all points, used as the site estimate.
// Elevation is averaged over the points that have one.
func (t *Track) Center() spatial.Position {
	var lat, lng, ele float64

	withEle := 0

	for _, p := range t.points {
		lat += p.Lat
		lng += p.Lng

		if p.Elevation != nil {
			ele += *p.Elevation
			withEle++
		}
	}

	n := float64(len(t.points))
	c := spatial.Position{Point: spatial.Point{Lat: lat / n, Lng: lng / n}}

	if withEle > 0 {
		c.Elevation = spatial.Float(ele / float64(withEle))
	}

	return c
}

// Length returns the haversine length of the track in meters.
func (t *Track) Length() float64 {
	var total float64

	for i := 1; i < len(t.points); i++ {
		total += t.points[i-1].Point.HaversineDistance(&t.points[i].Point)
	}

	return total
}
