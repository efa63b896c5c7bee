// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package photo

import (
	"fmt"
	"math"
	"time"

	"github.com/ibenthos/geotag/spatial"
	"github.com/ibenthos/geotag/utils/textutils"
)

// Field is a single metadata assignment. Value is a float64 or a string.
type Field struct {
	Name  string
	Value any
}

// Tags is an ordered set of metadata assignments.
type Tags []Field

// Merge returns t followed by other.
func (t Tags) Merge(other Tags) Tags {
	out := make(Tags, 0, len(t)+len(other))
	out = append(out, t...)

	return append(out, other...)
}

// Get returns the value assigned to name.
func (t Tags) Get(name string) (any, bool) {
	for _, f := range t {
		if f.Name == name {
			return f.Value, true
		}
	}

	return nil, false
}

// GeoTags builds the GPS tags for a position fixed at instant.
func GeoTags(pos spatial.Position, course *float64, instant time.Time) Tags {
	latRef, lngRef := "N", "E"
	if pos.Lat < 0 {
		latRef = "S"
	}

	if pos.Lng < 0 {
		lngRef = "W"
	}

	instant = instant.UTC()
	tags := Tags{
		{"GPSLatitude", math.Abs(pos.Lat)},
		{"GPSLatitudeRef", latRef},
		{"GPSLongitude", math.Abs(pos.Lng)},
		{"GPSLongitudeRef", lngRef},
		{"GPSDateStamp", instant.Format("2006:01:02")},
		{"GPSTimeStamp", instant.Format("15:04:05.999")},
	}

	if pos.Elevation != nil {
		ref := "Above Sea Level"
		if *pos.Elevation < 0 {
			ref = "Below Sea Level"
		}

		tags = append(tags,
			Field{"GPSAltitude", math.Abs(*pos.Elevation)},
			Field{"GPSAltitudeRef", ref},
		)
	}

	if course != nil {
		tags = append(tags,
			Field{"GPSTrack", *course},
			Field{"GPSTrackRef", "T"},
		)
	}

	return tags
}

// Attribution identifies who collected the photos and under which terms.
type Attribution struct {
	CollectorName  string
	CollectorORCID string
	PIName         string
	PIORCID        string
	Organisation   string
	License        string
}

func credit(name, role, orcid string) string {
	if orcid != "" {
		return fmt.Sprintf("%s (%s, ORCID: %s)", name, role, orcid)
	}

	return fmt.Sprintf("%s (%s)", name, role)
}

// Creator is "collector; principal investigator".
func (a Attribution) Creator() string {
	return credit(a.CollectorName, "Image collector", a.CollectorORCID) + "; " +
		credit(a.PIName, "Principal Investigator", a.PIORCID)
}

// Copyright is "organisation (Licensed under license)".
func (a Attribution) Copyright() string {
	return fmt.Sprintf("%s (Licensed under %s)", a.Organisation, a.License)
}

// Tags builds the attribution tags. EXIF strings are ASCII; XMP keeps the
// original spelling.
func (a Attribution) Tags() Tags {
	creator, copyright := a.Creator(), a.Copyright()

	return Tags{
		{"EXIF:Artist", textutils.ASCIIFolding(creator)},
		{"XMP-dc:Creator", creator},
		{"EXIF:Copyright", textutils.ASCIIFolding(copyright)},
		{"XMP-dc:Rights", copyright},
	}
}
