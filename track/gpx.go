// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/spatial"
	"golang.org/x/net/html/charset"
)

type gpx struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
	Routes  []gpxRoute `xml:"rte"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxRoute struct {
	Name   string     `xml:"name"`
	Points []gpxPoint `xml:"rtept"`
}

// Fields are pointers so that missing values can be told apart from zeros.
type gpxPoint struct {
	Lat       *string `xml:"lat,attr"`
	Lon       *string `xml:"lon,attr"`
	Elevation *string `xml:"ele"`
	Time      *string `xml:"time"`
}

// GPX times without a zone designator are read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Load parses the GPX file at path.
func Load(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, geoerr.MalformedTrack(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		if geoerr.IsEmptyTrack(err) {
			return nil, geoerr.EmptyTrack(path)
		}

		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	return t, nil
}

// Parse decodes a GPX document. Track points of every track and segment are
// merged into a single time ordered Track; route points are included when
// they carry a time. Waypoints and extensions are ignored.
func Parse(r io.Reader) (*Track, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, geoerr.MalformedTrack("reading GPX", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, geoerr.EmptyTrack("")
	}

	var doc gpx

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("no gpx element found")
		}

		return nil, geoerr.MalformedTrack("decoding GPX", err)
	}

	var (
		points []TrackPoint
		name   string
		idx    int
	)

	for _, trk := range doc.Tracks {
		if name == "" {
			name = strings.TrimSpace(trk.Name)
		}

		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				tp, err := p.toTrackPoint(idx)
				if err != nil {
					return nil, err
				}

				points = append(points, tp)
				idx++
			}
		}
	}

	for _, rte := range doc.Routes {
		for _, p := range rte.Points {
			if p.Time == nil {
				continue
			}

			tp, err := p.toTrackPoint(idx)
			if err != nil {
				return nil, err
			}

			points = append(points, tp)
			idx++
		}
	}

	t, err := New(points)
	if err != nil {
		return nil, err
	}

	t.name = name

	return t, nil
}

func (p gpxPoint) toTrackPoint(idx int) (TrackPoint, error) {
	malformed := func(format string, args ...any) error {
		return geoerr.MalformedTrack(fmt.Sprintf("point #%d: "+format, append([]any{idx}, args...)...), nil)
	}

	if p.Lat == nil || p.Lon == nil {
		return TrackPoint{}, malformed("missing lat/lon")
	}

	if p.Time == nil || strings.TrimSpace(*p.Time) == "" {
		return TrackPoint{}, malformed("missing time")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(*p.Lat), 64)
	if err != nil {
		return TrackPoint{}, malformed("invalid lat %q", *p.Lat)
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(*p.Lon), 64)
	if err != nil {
		return TrackPoint{}, malformed("invalid lon %q", *p.Lon)
	}

	pt := spatial.Point{Lat: lat, Lng: lon}
	if !pt.Valid() {
		return TrackPoint{}, malformed("coordinates out of range (%f, %f)", lat, lon)
	}

	ts, err := parseTime(strings.TrimSpace(*p.Time))
	if err != nil {
		return TrackPoint{}, malformed("invalid time %q", *p.Time)
	}

	tp := TrackPoint{Time: ts, Position: spatial.Position{Point: pt}}

	if p.Elevation != nil && strings.TrimSpace(*p.Elevation) != "" {
		ele, err := strconv.ParseFloat(strings.TrimSpace(*p.Elevation), 64)
		if err != nil {
			return TrackPoint{}, malformed("invalid ele %q", *p.Elevation)
		}

		tp.Elevation = &ele
	}

	return tp, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	var lastErr error

	for _, layout := range zonelessLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}

		lastErr = err
	}

	return time.Time{}, lastErr
}
