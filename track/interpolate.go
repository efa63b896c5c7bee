// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"fmt"
	"sort"
	"time"

	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/spatial"
)

// Fix is a located position. Course is the direction of travel between the
// bracketing track points, absent on exact hits.
type Fix struct {
	spatial.Position
	Course *float64 `json:"course,omitempty"`
}

// Interpolator locates instants on a Track. It is safe for concurrent use.
type Interpolator struct {
	track *Track
}

// NewInterpolator returns an Interpolator over t.
func NewInterpolator(t *Track) *Interpolator {
	return &Interpolator{track: t}
}

// first returns the index of the first point at or after instant.
func (in *Interpolator) first(instant time.Time) int {
	pts := in.track.points

	return sort.Search(len(pts), func(i int) bool {
		return !pts[i].Time.Before(instant)
	})
}

// Locate returns the position at instant, linearly interpolated between the
// bracketing track points. Instants outside of the track are never
// extrapolated.
func (in *Interpolator) Locate(instant time.Time) (Fix, error) {
	t := in.track
	if !t.Covers(instant) {
		return Fix{}, geoerr.OutOfRange(fmt.Sprintf(
			"%s is outside of the track [%s, %s]",
			instant.UTC().Format(time.RFC3339Nano),
			t.Start().Format(time.RFC3339),
			t.End().Format(time.RFC3339),
		))
	}

	i := in.first(instant)
	p1 := t.points[i]

	if p1.Time.Equal(instant) {
		return Fix{Position: p1.Position}, nil
	}

	// instant > Start, so i >= 1; with duplicates the first one bounds
	p0 := t.points[in.first(t.points[i-1].Time)]

	span := p1.Time.Sub(p0.Time)
	if span <= 0 {
		return Fix{Position: p0.Position}, nil
	}

	f := float64(instant.Sub(p0.Time)) / float64(span)

	fix := Fix{Position: spatial.Position{Point: p0.Point.Lerp(p1.Point, f)}}

	if p0.Elevation != nil && p1.Elevation != nil {
		fix.Elevation = spatial.Float(*p0.Elevation + (*p1.Elevation-*p0.Elevation)*f)
	}

	if p0.Point != p1.Point {
		fix.Course = spatial.Float(p0.Point.Bearing(&p1.Point))
	}

	return fix, nil
}
