// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointScanRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Point
	}{
		{"own format", "POINT(100.00500000 -12.50000000)", Point{Lat: -12.5, Lng: 100.005}},
		{"duckdb format", []byte("POINT (151.2 -33.8)"), Point{Lat: -33.8, Lng: 151.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Point
			require.NoError(t, p.Scan(tt.input))
			assert.InDelta(t, tt.want.Lat, p.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, p.Lng, 1e-9)
		})
	}

	var p Point
	assert.Error(t, p.Scan(42))
	require.NoError(t, p.Scan(nil))
	assert.Equal(t, Point{}, p)
}

func TestHaversineDistance(t *testing.T) {
	a := &Point{Lat: 0, Lng: 100}
	b := &Point{Lat: 0, Lng: 100.01}

	// 0.01 degrees of longitude at the equator
	assert.InDelta(t, 1111.95, a.HaversineDistance(b), 0.5)
	assert.InDelta(t, 0, a.HaversineDistance(a), 1e-9)
}

func TestBearing(t *testing.T) {
	origin := &Point{Lat: 0, Lng: 0}

	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", Point{Lat: 1, Lng: 0}, 0},
		{"east", Point{Lat: 0, Lng: 1}, 90},
		{"south", Point{Lat: -1, Lng: 0}, 180},
		{"west", Point{Lat: 0, Lng: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, origin.Bearing(&tt.to), 1e-9)
		})
	}
}

func TestLerp(t *testing.T) {
	a := Point{Lat: 0, Lng: 100}
	b := Point{Lat: 0, Lng: 100.01}

	got := a.Lerp(b, 0.5)
	assert.InDelta(t, 0.0, got.Lat, 1e-12)
	assert.InDelta(t, 100.005, got.Lng, 1e-12)
	assert.Equal(t, a, a.Lerp(b, 0))
	assert.Equal(t, b, a.Lerp(b, 1))
}

func TestValid(t *testing.T) {
	assert.True(t, Point{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}

func TestCells(t *testing.T) {
	cells, err := Cells(Point{Lat: -27.47, Lng: 153.02}, 8, 12)
	require.NoError(t, err)
	assert.Len(t, cells, 5)

	for _, c := range cells {
		assert.NotZero(t, c)
	}

	_, err = Cells(Point{}, 5, 4)
	assert.Error(t, err)

	_, err = Cell(Point{}, 16)
	assert.Error(t, err)
}
