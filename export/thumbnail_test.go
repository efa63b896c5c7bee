// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for x := range 300 {
		for y := range 200 {
			c := color.RGBA{220, 0, 0, 255}
			if x < 50 || x >= 250 {
				// cropped away by the centre square
				c = color.RGBA{0, 0, 220, 255}
			}

			src.Set(x, y, c)
		}
	}

	got := Thumbnail(src, 128, 3)
	assert.Equal(t, image.Rect(0, 0, 128, 128), got.Bounds())

	corner := got.NRGBAAt(0, 0)
	assert.Equal(t, uint8(0), corner.A)

	ring := got.NRGBAAt(64, 1)
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, ring)

	center := got.NRGBAAt(64, 64)
	assert.Equal(t, uint8(255), center.A)
	assert.Greater(t, center.R, uint8(200))
	assert.Less(t, center.B, uint8(20))

	edge := got.NRGBAAt(10, 64)
	assert.Greater(t, edge.R, uint8(200))
}

func TestThumbnail_NoBorder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := range 10 {
		for y := range 10 {
			src.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}

	got := Thumbnail(src, 32, 0)
	assert.Equal(t, uint8(0), got.NRGBAAt(0, 0).A)

	center := got.NRGBAAt(16, 16)
	assert.Equal(t, uint8(255), center.A)
	assert.InDelta(t, 128, int(center.G), 2)
}
