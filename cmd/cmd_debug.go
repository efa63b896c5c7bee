// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/photo"
	"github.com/ibenthos/geotag/spatial"
	"github.com/ibenthos/geotag/track"
	"github.com/ibenthos/geotag/utils/textutils"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugTrackCmd = &cobra.Command{
	Use:   "track <gpx>",
	Short: "Print a summary of a GPX track",
	Long: `Print the point count, time span, length and center of a GPX track.

$ geotag debug track dive-12.gpx
points   612
start    2023-06-16T08:00:00Z
end      2023-06-16T09:01:10Z
…`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		trk, err := track.Load(args[0])
		if err != nil {
			return err
		}

		center := trk.Center()

		cell, err := spatial.Cell(center.Point, 8)
		if err != nil {
			return err
		}

		if trk.Name() != "" {
			fmt.Printf("name     %s\n", trk.Name())
		}

		fmt.Printf("points   %s\n", textutils.FormatInt(int64(trk.Len())))
		fmt.Printf("start    %s\n", trk.Start().Format(time.RFC3339))
		fmt.Printf("end      %s\n", trk.End().Format(time.RFC3339))
		fmt.Printf("duration %s\n", trk.End().Sub(trk.Start()))
		fmt.Printf("length   %s m\n", textutils.FormatInt(int64(math.Round(trk.Length()))))
		fmt.Printf("center   %.6f, %.6f\n", center.Lat, center.Lng)

		if center.Elevation != nil {
			fmt.Printf("mean ele %.1f m\n", *center.Elevation)
		}

		fmt.Printf("h3       %s\n", spatial.CellString(cell))

		return nil
	},
}

var debugOffsetOptions = struct {
	photo    string
	gpsDate  string
	gpsTime  string
	cameraTZ string
	gpsTZ    string
}{}

var debugOffsetCmd = &cobra.Command{
	Use:   "offset",
	Short: "Measure the camera clock drift from a photo of the GPS display",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		o := debugOffsetOptions

		cameraZone, err := clock.ParseZone(o.cameraTZ)
		if err != nil {
			return err
		}

		gpsZone, err := clock.ParseZone(o.gpsTZ)
		if err != nil {
			return err
		}

		capture, err := photo.ReadCapture(o.photo)
		if err != nil {
			return err
		}

		offset, err := clock.Estimate(clock.Reference{
			CameraTime: capture.Time,
			CameraZone: cameraZone,
			GPSDate:    o.gpsDate,
			GPSTime:    o.gpsTime,
			GPSZone:    gpsZone,
		})
		if err != nil {
			return err
		}

		fmt.Printf("camera   %s (%s)\n", capture.Time.Format(clock.ExifLayout), o.cameraTZ)
		fmt.Printf("platform %s\n", capture.Platform())
		fmt.Printf("offset   %s\n", offset)
		fmt.Printf("drift    %+.3fs\n", offset.Drift.Seconds())

		return nil
	},
}

var debugTimezonesCmd = &cobra.Command{
	Use:   "timezones",
	Short: "List the selectable camera and GPS timezones",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		for _, z := range clock.Zones {
			if z == clock.DefaultZone {
				fmt.Printf("%s (default)\n", z)

				continue
			}

			fmt.Println(z)
		}
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugTrackCmd)
	debugCmd.AddCommand(debugOffsetCmd)
	debugCmd.AddCommand(debugTimezonesCmd)

	f := debugOffsetCmd.Flags()
	f.StringVar(&debugOffsetOptions.photo, "photo", "", "Photo of the GPS display")
	f.StringVar(&debugOffsetOptions.gpsDate, "gps-date", "", "Date shown by the GPS (YYYY-MM-DD)")
	f.StringVar(&debugOffsetOptions.gpsTime, "gps-time", "", "Time shown by the GPS (HH:MM:SS)")
	f.StringVar(&debugOffsetOptions.cameraTZ, "camera-tz", clock.DefaultZone, "Timezone the camera clock was set to")
	f.StringVar(&debugOffsetOptions.gpsTZ, "gps-tz", clock.DefaultZone, "Timezone of the GPS display")

	for _, name := range []string{"photo", "gps-date", "gps-time"} {
		if err := debugOffsetCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}
