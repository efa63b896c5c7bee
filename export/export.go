// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package export produces the scientific artifacts of a geotagging run: an
// iFDO YAML document and a KML (or KMZ with thumbnails) overview map.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ibenthos/geotag/spatial"
)

const (
	// IFDOFile is the name of the iFDO document inside the export directory.
	IFDOFile = "ifdo.yml"
	// KMLFile is written when thumbnails are disabled.
	KMLFile = "images.kml"
	// KMZFile is written when thumbnails are enabled.
	KMZFile = "images.kmz"
)

// Record is a successfully geotagged photo as seen by the exporters.
type Record struct {
	// RelPath is relative to the export directory, with forward slashes.
	RelPath  string
	Path     string
	Time     time.Time
	Position spatial.Position
	Platform string
	Sensor   string
}

func sorted(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })

	return out
}

// createFile opens a temporary file in dir; publish renames it to name.
func createFile(dir, name string) (*os.File, func() error, error) {
	f, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", name, err)
	}

	publish := func() error {
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())

			return err
		}

		return os.Rename(f.Name(), filepath.Join(dir, name))
	}

	return f, publish, nil
}

func discard(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
