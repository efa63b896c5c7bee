// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/ledger"
	"github.com/ibenthos/geotag/utils/logger"
	"github.com/spf13/cobra"
)

var runOptions = struct {
	config string
	ledger string
	json   bool
	flags  geotag.Configuration
}{}

// flagSetters copies explicitly set flags over the file and environment
// values.
var flagSetters = map[string]func(dst *geotag.Configuration, src geotag.Configuration){
	"import-dir":            func(d *geotag.Configuration, s geotag.Configuration) { d.ImportDir = s.ImportDir },
	"gpx":                   func(d *geotag.Configuration, s geotag.Configuration) { d.GPXPath = s.GPXPath },
	"export-dir":            func(d *geotag.Configuration, s geotag.Configuration) { d.ExportDir = s.ExportDir },
	"camera-tz":             func(d *geotag.Configuration, s geotag.Configuration) { d.CameraZone = s.CameraZone },
	"camera-id":             func(d *geotag.Configuration, s geotag.Configuration) { d.CameraID = s.CameraID },
	"ref-photo":             func(d *geotag.Configuration, s geotag.Configuration) { d.Reference.Photo = s.Reference.Photo },
	"gps-date":              func(d *geotag.Configuration, s geotag.Configuration) { d.Reference.GPSDate = s.Reference.GPSDate },
	"gps-time":              func(d *geotag.Configuration, s geotag.Configuration) { d.Reference.GPSTime = s.Reference.GPSTime },
	"gps-tz":                func(d *geotag.Configuration, s geotag.Configuration) { d.Reference.GPSZone = s.Reference.GPSZone },
	"site-id":               func(d *geotag.Configuration, s geotag.Configuration) { d.Site.ID = s.Site.ID },
	"attribution":           func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.Enabled = s.Attribution.Enabled },
	"collector-name":        func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.CollectorName = s.Attribution.CollectorName },
	"collector-orcid":       func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.CollectorORCID = s.Attribution.CollectorORCID },
	"pi-name":               func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.PIName = s.Attribution.PIName },
	"pi-orcid":              func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.PIORCID = s.Attribution.PIORCID },
	"organisation":          func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.Organisation = s.Attribution.Organisation },
	"license":               func(d *geotag.Configuration, s geotag.Configuration) { d.Attribution.License = s.Attribution.License },
	"ifdo":                  func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Enabled = s.IFDO.Enabled },
	"image-set-name":        func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.ImageSetName = s.IFDO.ImageSetName },
	"context":               func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Context = s.IFDO.Context },
	"project":               func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Project = s.IFDO.Project },
	"campaign":              func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Campaign = s.IFDO.Campaign },
	"objective":             func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Objective = s.IFDO.Objective },
	"abstract":              func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.Abstract = s.IFDO.Abstract },
	"distance-above-ground": func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.DistanceAboveGround = s.IFDO.DistanceAboveGround },
	"altitude":              func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.AltitudeMeters = s.IFDO.AltitudeMeters },
	"target-environment":    func(d *geotag.Configuration, s geotag.Configuration) { d.IFDO.TargetEnvironment = s.IFDO.TargetEnvironment },
	"kml":                   func(d *geotag.Configuration, s geotag.Configuration) { d.KML.Enabled = s.KML.Enabled },
	"thumbnails":            func(d *geotag.Configuration, s geotag.Configuration) { d.KML.Thumbnails = s.KML.Thumbnails },
	"out-of-range":          func(d *geotag.Configuration, s geotag.Configuration) { d.OutOfRange = s.OutOfRange },
	"workers":               func(d *geotag.Configuration, s geotag.Configuration) { d.Workers = s.Workers },
	"extensions":            func(d *geotag.Configuration, s geotag.Configuration) { d.Extensions = s.Extensions },
	"exiftool":              func(d *geotag.Configuration, s geotag.Configuration) { d.ExiftoolPath = s.ExiftoolPath },
}

// loadConfiguration layers defaults, GEOTAG_* variables, the run file and the
// flags set on cmd, in increasing precedence.
func loadConfiguration(ctx context.Context, cmd *cobra.Command, path string) (geotag.Configuration, error) {
	cfg, err := geotag.LoadEnv(ctx)
	if err != nil {
		return cfg, err
	}

	if path != "" {
		if cfg, err = geotag.LoadFile(path, cfg); err != nil {
			return cfg, err
		}
	}

	for name, set := range flagSetters {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			set(&cfg, runOptions.flags)
		}
	}

	return cfg, nil
}

// openLedger returns a nil recorder when path is empty.
func openLedger(path string) (*sql.DB, ledger.Repository, error) {
	if path == "" {
		return nil, nil, nil
	}

	return ledger.Open(path)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Geotag the photos of an import directory",
	Long: `Geotag every photo of --import-dir with positions interpolated from --gpx
and write the tagged copies into --export-dir.

$ geotag run --import-dir dive-12 --gpx dive-12.gpx --export-dir out \
    --camera-tz UTC+10:00 --ref-photo dive-12/gps.jpg \
    --gps-date 2023-06-16 --gps-time 08:00:05
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.Get()

		cfg, err := loadConfiguration(ctx, cmd, runOptions.config)
		if err != nil {
			return err
		}

		deps := geotag.DefaultDependencies()

		db, repo, err := openLedger(runOptions.ledger)
		if err != nil {
			return err
		}

		if db != nil {
			defer db.Close()

			deps.Recorder = repo
		}

		engine := geotag.NewEngine(deps, log)

		report, runErr := engine.Run(ctx, cfg)

		if !runOptions.json {
			fmt.Print(engine.Feedback().Text())
		}

		if report != nil && runOptions.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
		}

		if runErr != nil {
			return runErr
		}

		if report.ExportErr != nil {
			return report.ExportErr
		}

		if report.Canceled {
			return errors.New("geotagging canceled")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addConfigFlags(runCmd)

	runCmd.Flags().StringVar(&runOptions.ledger, "ledger", "", "DuckDB file where the run is recorded")
	runCmd.Flags().BoolVar(&runOptions.json, "json", false, "Print the batch report as JSON on stdout")
}

// addConfigFlags registers the run configuration flags on cmd.
func addConfigFlags(cmd *cobra.Command) {
	f := &runOptions.flags
	fs := cmd.Flags()

	fs.StringVar(&runOptions.config, "config", "", "YAML run file")
	fs.StringVar(&f.ImportDir, "import-dir", "", "Directory holding the photos")
	fs.StringVar(&f.GPXPath, "gpx", "", "GPX track recorded during the survey")
	fs.StringVar(&f.ExportDir, "export-dir", "", "Directory where tagged photos and exports are written")
	fs.StringVar(&f.CameraZone, "camera-tz", "UTC+00:00", "Timezone the camera clock was set to")
	fs.StringVar(&f.CameraID, "camera-id", "", "Camera identifier reported as the iFDO sensor")
	fs.StringVar(&f.Reference.Photo, "ref-photo", "", "Photo of the GPS display used to measure the clock drift")
	fs.StringVar(&f.Reference.GPSDate, "gps-date", "", "Date shown by the GPS in the reference photo (YYYY-MM-DD)")
	fs.StringVar(&f.Reference.GPSTime, "gps-time", "", "Time shown by the GPS in the reference photo (HH:MM:SS)")
	fs.StringVar(&f.Reference.GPSZone, "gps-tz", "UTC+00:00", "Timezone of the GPS display")
	fs.StringVar(&f.Site.ID, "site-id", "", "Survey site identifier")
	fs.BoolVar(&f.Attribution.Enabled, "attribution", false, "Write creator and copyright tags")
	fs.StringVar(&f.Attribution.CollectorName, "collector-name", "", "Name of the image collector")
	fs.StringVar(&f.Attribution.CollectorORCID, "collector-orcid", "", "ORCID of the image collector")
	fs.StringVar(&f.Attribution.PIName, "pi-name", "", "Name of the principal investigator")
	fs.StringVar(&f.Attribution.PIORCID, "pi-orcid", "", "ORCID of the principal investigator")
	fs.StringVar(&f.Attribution.Organisation, "organisation", "", "Organisation holding the copyright")
	fs.StringVar(&f.Attribution.License, "license", "CC BY 4.0", "License of the images")
	fs.BoolVar(&f.IFDO.Enabled, "ifdo", false, "Export ifdo.yml")
	fs.StringVar(&f.IFDO.ImageSetName, "image-set-name", "", "iFDO image set name")
	fs.StringVar(&f.IFDO.Context, "context", "", "iFDO image context")
	fs.StringVar(&f.IFDO.Project, "project", "", "iFDO project")
	fs.StringVar(&f.IFDO.Campaign, "campaign", "", "iFDO event (survey campaign)")
	fs.StringVar(&f.IFDO.Objective, "objective", "", "iFDO objective")
	fs.StringVar(&f.IFDO.Abstract, "abstract", "", "iFDO abstract")
	fs.Float64Var(&f.IFDO.DistanceAboveGround, "distance-above-ground", 0.9, "Camera distance above the seabed in meters")
	fs.Float64Var(&f.IFDO.AltitudeMeters, "altitude", 0, "Altitude used when the track has no elevation")
	fs.StringVar(&f.IFDO.TargetEnvironment, "target-environment", "Shallow Benthic", "iFDO target environment")
	fs.BoolVar(&f.KML.Enabled, "kml", false, "Export a KML overview of the images")
	fs.BoolVar(&f.KML.Thumbnails, "thumbnails", true, "Embed circular thumbnails, producing images.kmz")
	fs.StringVar((*string)(&f.OutOfRange), "out-of-range", string(geotag.OutOfRangeSkip), "Photos outside the track: skip or attribution")
	fs.IntVar(&f.Workers, "workers", 0, "Photos tagged in parallel. Defaults to the number of CPUs")
	fs.StringSliceVar(&f.Extensions, "extensions", []string{".jpg", ".jpeg", ".png"}, "Photo extensions to process")
	fs.StringVar(&f.ExiftoolPath, "exiftool", "", "Path of the exiftool binary")
}
