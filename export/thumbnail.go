// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // decoder
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

const (
	// ThumbnailSize is the diameter of KMZ icons in pixels.
	ThumbnailSize = 128
	// ThumbnailBorder is the width of the white ring around the photo.
	ThumbnailBorder = 3
)

// circle is an alpha mask: opaque inside a disc of diameter d at origin.
type circle struct {
	origin image.Point
	d      int
}

func (c circle) ColorModel() color.Model { return color.AlphaModel }

func (c circle) Bounds() image.Rectangle {
	return image.Rectangle{Min: c.origin, Max: c.origin.Add(image.Pt(c.d, c.d))}
}

func (c circle) At(x, y int) color.Color {
	r := float64(c.d) / 2
	dx := float64(x-c.origin.X) + 0.5 - r
	dy := float64(y-c.origin.Y) + 0.5 - r

	if dx*dx+dy*dy <= r*r {
		return color.Opaque
	}

	return color.Transparent
}

// centerSquare returns the largest centred square of b.
func centerSquare(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2

	return image.Rect(x0, y0, x0+side, y0+side)
}

// Thumbnail crops the centre square of img and renders it as a circular
// icon of size pixels surrounded by a white ring border pixels wide.
func Thumbnail(img image.Image, size, border int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, size, size))

	inner := size - 2*border
	if border > 0 {
		draw.DrawMask(out, out.Bounds(), image.White, image.Point{}, circle{d: size}, image.Point{}, draw.Over)
	}

	scaled := image.NewNRGBA(image.Rect(0, 0, inner, inner))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, centerSquare(img.Bounds()), draw.Src, nil)

	dst := image.Rect(border, border, border+inner, border+inner)
	draw.DrawMask(out, dst, scaled, image.Point{}, circle{d: inner}, image.Point{}, draw.Over)

	return out
}

// ThumbnailPNG decodes the photo at path and returns its circular icon as PNG.
func ThumbnailPNG(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, ThumbnailSize, ThumbnailBorder)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail of %s: %w", path, err)
	}

	return buf.Bytes(), nil
}
