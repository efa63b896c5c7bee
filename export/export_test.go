// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ibenthos/geotag/spatial"
	"github.com/stretchr/testify/require"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	return buf.Bytes()
}

// fixture writes each relative path under dir and returns its record.
func fixture(t *testing.T, dir string, rels ...string) []Record {
	t.Helper()

	base := time.Date(2023, 6, 16, 0, 37, 36, 0, time.UTC)
	lats := []float64{-16.5, -16.25, -16.125}
	records := make([]Record, 0, len(rels))

	for i, rel := range rels {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, solidJPEG(t, 40, 30, color.RGBA{200, 10, 10, 255}), 0o644))

		records = append(records, Record{
			RelPath:  rel,
			Path:     p,
			Time:     base.Add(time.Duration(i) * time.Second),
			Position: spatial.Position{Point: spatial.Point{Lat: lats[i%len(lats)], Lng: 145.7}},
			Platform: "OLYMPUS TG-6",
		})
	}

	return records
}
