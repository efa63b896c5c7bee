// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultZone is preselected for both the camera and the GPS unit.
const DefaultZone = "UTC+00:00"

// Zones is the list of fixed offsets an operator picks the camera and GPS
// zones from.
var Zones = []string{
	"UTC-12:00", "UTC-11:00", "UTC-10:00", "UTC-09:30", "UTC-09:00", "UTC-08:00",
	"UTC-07:00", "UTC-06:00", "UTC-05:00", "UTC-04:00", "UTC-03:30", "UTC-03:00",
	"UTC-02:30", "UTC-02:00", "UTC-01:00", "UTC+00:00", "UTC+01:00", "UTC+02:00",
	"UTC+03:00", "UTC+03:30", "UTC+04:00", "UTC+04:30", "UTC+05:00", "UTC+05:30",
	"UTC+05:45", "UTC+06:00", "UTC+06:30", "UTC+07:00", "UTC+08:00", "UTC+08:45",
	"UTC+09:00", "UTC+09:30", "UTC+10:00", "UTC+10:30", "UTC+11:00", "UTC+12:00",
	"UTC+12:45", "UTC+13:00", "UTC+13:45", "UTC+14:00",
}

var offsetZoneRegex = regexp.MustCompile(`^UTC([+-])(\d{2}):(\d{2})$`)

// ParseZone resolves "UTC±HH:MM" into a fixed zone. The sign applies to the
// whole offset, so "UTC-09:30" is nine and a half hours behind UTC. Anything
// else is looked up as an IANA zone name.
func ParseZone(name string) (*time.Location, error) {
	if name == "" || name == "UTC" || name == "Z" {
		return time.UTC, nil
	}

	m := offsetZoneRegex.FindStringSubmatch(name)
	if m == nil {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
		}

		return loc, nil
	}

	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])

	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("timezone %q out of range", name)
	}

	seconds := hours*3600 + minutes*60
	if m[1] == "-" {
		seconds = -seconds
	}

	return time.FixedZone(name, seconds), nil
}

// ZoneIndex returns the position of name in Zones, -1 when absent.
func ZoneIndex(name string) int {
	for i, z := range Zones {
		if z == name {
			return i
		}
	}

	return -1
}
