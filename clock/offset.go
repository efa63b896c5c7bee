// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock aligns camera timestamps with GPS time.
//
// Cameras store capture times as wall clock readings without a zone. The
// operator declares the zone the camera clock was set to and, optionally,
// photographs the GPS unit display so the residual drift between both clocks
// can be measured. The resulting ClockOffset is applied to every photo of the
// run.
package clock

import (
	"fmt"
	"time"

	"github.com/ibenthos/geotag/geoerr"
)

const (
	// DateLayout is the GPS display date as typed by the operator.
	DateLayout = "2006-01-02"
	// ExifLayout is the EXIF DateTimeOriginal layout.
	ExifLayout = "2006:01:02 15:04:05"
)

var timeLayouts = []string{"15:04:05", "15:04"}

// ClockOffset converts camera wall clock readings into true UTC instants.
type ClockOffset struct {
	// CameraZone is the zone the camera clock was set to.
	CameraZone *time.Location
	// Drift is true GPS time minus the camera instant of the reference photo.
	Drift time.Duration
	// Synchronized is set when Drift was measured from a reference photo.
	Synchronized bool
}

// NoReference trusts the camera clock, converted to UTC through zone.
func NoReference(zone *time.Location) ClockOffset {
	if zone == nil {
		zone = time.UTC
	}

	return ClockOffset{CameraZone: zone}
}

// Apply maps a camera wall clock reading to the corrected UTC instant. The
// location carried by captured is ignored.
func (o ClockOffset) Apply(captured time.Time) time.Time {
	return Wall(captured, o.CameraZone).Add(o.Drift).UTC()
}

func (o ClockOffset) String() string {
	zone := "UTC"
	if o.CameraZone != nil {
		zone = o.CameraZone.String()
	}

	if !o.Synchronized {
		return fmt.Sprintf("camera clock in %s, no drift correction", zone)
	}

	return fmt.Sprintf("camera clock in %s, drift %s", zone, o.Drift)
}

// Reference is the reference photo measurement: what the camera recorded and
// what the GPS unit displayed at the same moment.
type Reference struct {
	CameraTime time.Time
	CameraZone *time.Location
	GPSDate    string
	GPSTime    string
	GPSZone    *time.Location
}

// Estimate measures the camera drift. The camera zone is applied to the
// camera reading before differencing against the GPS instant.
func Estimate(ref Reference) (ClockOffset, error) {
	if ref.CameraTime.IsZero() {
		return ClockOffset{}, geoerr.Configuration("reference photo has no capture time", nil)
	}

	gps, err := ParseDisplayTime(ref.GPSDate, ref.GPSTime, ref.GPSZone)
	if err != nil {
		return ClockOffset{}, err
	}

	zone := ref.CameraZone
	if zone == nil {
		zone = time.UTC
	}

	return ClockOffset{
		CameraZone:   zone,
		Drift:        gps.Sub(Wall(ref.CameraTime, zone)),
		Synchronized: true,
	}, nil
}

// ParseDisplayTime reads the date and time shown on the GPS unit. The time
// accepts HH:MM, HH:MM:SS and fractional seconds.
func ParseDisplayTime(date, display string, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}

	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, geoerr.Configuration("GPS Date field is not a valid date", err)
	}

	for _, layout := range timeLayouts {
		c, err := time.Parse(layout, display)
		if err != nil {
			continue
		}

		return time.Date(d.Year(), d.Month(), d.Day(),
			c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), zone).UTC(), nil
	}

	return time.Time{}, geoerr.Configuration(fmt.Sprintf("GPS Time field is not a valid time: %q", display), nil)
}

// Wall reinterprets the wall clock reading of t in zone.
func Wall(t time.Time, zone *time.Location) time.Time {
	if zone == nil {
		zone = time.UTC
	}

	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}
