// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package photo reads capture metadata from photos and writes geolocation
// and attribution tags back into them.
package photo

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoCaptureTime is returned when a photo carries no usable capture time.
var ErrNoCaptureTime = errors.New("does not contain time data")

// ExifLayout is the EXIF date/time layout.
const ExifLayout = "2006:01:02 15:04:05"

// Capture is what the camera recorded about a shot. Time is the naive wall
// clock reading, stored in UTC without any zone conversion.
type Capture struct {
	Time  time.Time
	Make  string
	Model string
}

// Platform returns "Make Model", or "Unknown" when either is missing.
func (c Capture) Platform() string {
	if c.Make == "" || c.Model == "" {
		return "Unknown"
	}

	return c.Make + " " + c.Model
}

// Inspector reads capture metadata from a photo.
type Inspector interface {
	Inspect(path string) (Capture, error)
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(path string) (Capture, error)

// Inspect calls f(path).
func (f InspectorFunc) Inspect(path string) (Capture, error) { return f(path) }

// ReadCapture decodes the EXIF block of a JPEG or TIFF photo.
func ReadCapture(path string) (Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Capture{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Capture{}, fmt.Errorf("decoding exif: %w", err)
	}

	var c Capture

	c.Make = stringTag(x, exif.Make)
	c.Model = stringTag(x, exif.Model)

	raw := stringTag(x, exif.DateTimeOriginal)
	if raw == "" {
		raw = stringTag(x, exif.DateTime)
	}

	if raw == "" {
		return c, ErrNoCaptureTime
	}

	c.Time, err = ParseExifTime(raw, stringTag(x, exif.SubSecTimeOriginal))
	if err != nil {
		return c, err
	}

	return c, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}

	s, err := tag.StringVal()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// ParseExifTime parses an EXIF date/time with optional sub-second digits.
// Blank and all-zero values count as missing.
func ParseExifTime(raw, subsec string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "0000:00:00") {
		return time.Time{}, ErrNoCaptureTime
	}

	// exiftool may append a zone or sub-seconds; keep the wall clock part
	if len(raw) > len(ExifLayout) {
		raw = raw[:len(ExifLayout)]
	}

	t, err := time.Parse(ExifLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoCaptureTime, raw)
	}

	subsec = strings.TrimSpace(subsec)
	if subsec != "" && strings.Trim(subsec, "0123456789") == "" {
		if len(subsec) > 9 {
			subsec = subsec[:9]
		}

		frac, _ := time.ParseDuration("0." + subsec + "s")
		t = t.Add(frac)
	}

	return t, nil
}
