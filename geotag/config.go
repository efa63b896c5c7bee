// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/photo"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "GEOTAG_"

// OutOfRangePolicy decides what happens to photos outside the track.
type OutOfRangePolicy string

const (
	// OutOfRangeSkip leaves the photo untouched.
	OutOfRangeSkip OutOfRangePolicy = "skip"
	// OutOfRangeAttribution writes attribution tags only, when attribution is enabled.
	OutOfRangeAttribution OutOfRangePolicy = "attribution"
)

// Reference describes the photo of the GPS display used to measure drift.
// An empty Photo means the camera clock is trusted.
type Reference struct {
	Photo   string `yaml:"photo"        json:"photo"        env:"PHOTO"                    validate:"omitempty,file"`
	GPSDate string `yaml:"gps_date"     json:"gps_date"     env:"GPS_DATE"                 validate:"omitempty,isodate"`
	GPSTime string `yaml:"gps_time"     json:"gps_time"     env:"GPS_TIME"                 validate:"omitempty,isotime"`
	GPSZone string `yaml:"gps_timezone" json:"gps_timezone" env:"GPS_TZ, default=UTC+00:00" validate:"required,zone"`
}

// Site is informational; the engine never reads it.
type Site struct {
	ID        string   `yaml:"id"        json:"id"        env:"ID"`
	Latitude  *float64 `yaml:"latitude"  json:"latitude"  env:"LATITUDE"  validate:"omitempty,latitude"`
	Longitude *float64 `yaml:"longitude" json:"longitude" env:"LONGITUDE" validate:"omitempty,longitude"`
}

// Attribution identifies the people behind the photos.
type Attribution struct {
	Enabled        bool   `yaml:"enabled"         json:"enabled"         env:"ENABLED"`
	CollectorName  string `yaml:"collector_name"  json:"collector_name"  env:"COLLECTOR_NAME"`
	CollectorORCID string `yaml:"collector_orcid" json:"collector_orcid" env:"COLLECTOR_ORCID"         validate:"omitempty,orcid"`
	PIName         string `yaml:"pi_name"         json:"pi_name"         env:"PI_NAME"`
	PIORCID        string `yaml:"pi_orcid"        json:"pi_orcid"        env:"PI_ORCID"                validate:"omitempty,orcid"`
	Organisation   string `yaml:"organisation"    json:"organisation"    env:"ORGANISATION"`
	License        string `yaml:"license"         json:"license"         env:"LICENSE, default=CC BY 4.0"`
}

// IFDO holds the image-set properties of the iFDO document.
type IFDO struct {
	Enabled             bool    `yaml:"enabled"               json:"enabled"               env:"ENABLED"`
	ImageSetName        string  `yaml:"image_set_name"        json:"image_set_name"        env:"IMAGE_SET_NAME"`
	Context             string  `yaml:"context"               json:"context"               env:"CONTEXT"`
	Project             string  `yaml:"project"               json:"project"               env:"PROJECT"`
	Campaign            string  `yaml:"campaign"              json:"campaign"              env:"CAMPAIGN"`
	Objective           string  `yaml:"objective"             json:"objective"             env:"OBJECTIVE"`
	Abstract            string  `yaml:"abstract"              json:"abstract"              env:"ABSTRACT"`
	DistanceAboveGround float64 `yaml:"distance_above_ground" json:"distance_above_ground" env:"DISTANCE_ABOVE_GROUND, default=0.9"          validate:"gte=0"`
	AltitudeMeters      float64 `yaml:"altitude_meters"       json:"altitude_meters"       env:"ALTITUDE_METERS"`
	TargetEnvironment   string  `yaml:"target_environment"    json:"target_environment"    env:"TARGET_ENVIRONMENT, default=Shallow Benthic"`
}

// KML controls the overview map.
type KML struct {
	Enabled    bool `yaml:"enabled"    json:"enabled"    env:"ENABLED"`
	Thumbnails bool `yaml:"thumbnails" json:"thumbnails" env:"THUMBNAILS, default=true"`
}

// Configuration is the snapshot of everything a run needs. It is passed by
// value and never shared between runs.
type Configuration struct {
	ImportDir    string           `yaml:"import_dir"      json:"import_dir"      env:"IMPORT_DIR"                   validate:"required,dir"`
	GPXPath      string           `yaml:"gpx_file"        json:"gpx_file"        env:"GPX_FILE"                     validate:"required,file"`
	ExportDir    string           `yaml:"export_dir"      json:"export_dir"      env:"EXPORT_DIR"                   validate:"required"`
	CameraZone   string           `yaml:"camera_timezone" json:"camera_timezone" env:"CAMERA_TZ, default=UTC+00:00" validate:"required,zone"`
	CameraID     string           `yaml:"camera_id"       json:"camera_id"       env:"CAMERA_ID"`
	Reference    Reference        `yaml:"reference"       json:"reference"       env:", prefix=REFERENCE_"`
	Site         Site             `yaml:"site"            json:"site"            env:", prefix=SITE_"`
	Attribution  Attribution      `yaml:"attribution"     json:"attribution"     env:", prefix=ATTRIBUTION_"`
	IFDO         IFDO             `yaml:"ifdo"            json:"ifdo"            env:", prefix=IFDO_"`
	KML          KML              `yaml:"kml"             json:"kml"             env:", prefix=KML_"`
	OutOfRange   OutOfRangePolicy `yaml:"out_of_range"    json:"out_of_range"    env:"OUT_OF_RANGE, default=skip"    validate:"oneof=skip attribution"`
	Workers      int              `yaml:"workers"         json:"workers"         env:"WORKERS"                      validate:"gte=0"`
	Extensions   []string         `yaml:"extensions"      json:"extensions"      env:"EXTENSIONS, default=.jpg,.jpeg,.png" validate:"min=1,dive,required"`
	ExiftoolPath string           `yaml:"exiftool"        json:"exiftool"        env:"EXIFTOOL"`
}

func process(ctx context.Context, cfg *Configuration, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return geoerr.Configuration("reading environment", err)
	}

	return nil
}

// Defaults returns a Configuration holding only default values.
func Defaults() Configuration {
	var cfg Configuration
	if err := process(context.Background(), &cfg, envconfig.MapLookuper(nil)); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}

	return cfg
}

// LoadEnv reads defaults and GEOTAG_* environment variables.
func LoadEnv(ctx context.Context) (Configuration, error) {
	return loadEnv(ctx, envconfig.OsLookuper())
}

func loadEnv(ctx context.Context, l envconfig.Lookuper) (Configuration, error) {
	var cfg Configuration
	if err := process(ctx, &cfg, envconfig.PrefixLookuper(EnvPrefix, l)); err != nil {
		return Configuration{}, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML run file at path on top of cfg.
func LoadFile(path string, cfg Configuration) (Configuration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, geoerr.Configuration("reading run file", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, geoerr.Configuration(fmt.Sprintf("parsing run file %s", path), err)
	}

	return cfg, nil
}

func stripFileURL(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "file://")
}

// Normalize strips file:// prefixes and surrounding spaces from paths,
// lowercases extensions and resolves the worker count.
func (c Configuration) Normalize() Configuration {
	c.ImportDir = stripFileURL(c.ImportDir)
	c.GPXPath = stripFileURL(c.GPXPath)
	c.ExportDir = stripFileURL(c.ExportDir)
	c.Reference.Photo = stripFileURL(c.Reference.Photo)
	c.Reference.GPSDate = strings.TrimSpace(c.Reference.GPSDate)
	c.Reference.GPSTime = strings.TrimSpace(c.Reference.GPSTime)

	exts := make([]string, 0, len(c.Extensions))
	for _, e := range c.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}

		exts = append(exts, e)
	}

	c.Extensions = exts

	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}

	if c.OutOfRange == "" {
		c.OutOfRange = OutOfRangeSkip
	}

	return c
}

// Synchronized reports whether a reference photo is used to measure drift.
func (c Configuration) Synchronized() bool {
	return c.Reference.Photo != ""
}

// PhotoAttribution returns the attribution written into photos, or nil when
// attribution is disabled.
func (c Configuration) PhotoAttribution() *photo.Attribution {
	if !c.Attribution.Enabled {
		return nil
	}

	return &photo.Attribution{
		CollectorName:  c.Attribution.CollectorName,
		CollectorORCID: c.Attribution.CollectorORCID,
		PIName:         c.Attribution.PIName,
		PIORCID:        c.Attribution.PIORCID,
		Organisation:   c.Attribution.Organisation,
		License:        c.Attribution.License,
	}
}

// Validate checks every field and returns all violations joined inside a
// single configuration error.
func (c Configuration) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		errs = append(errs, translate(err)...)
	}

	if err := checkExportDir(c.ExportDir); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}

	return geoerr.Configuration("invalid configuration", errors.Join(errs...))
}

// checkExportDir accepts an existing directory or a path whose closest
// existing ancestor is a directory.
func checkExportDir(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("export directory is not a directory")
		}

		return nil
	}

	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("export directory cannot be used: %w", err)
	}

	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		info, err := os.Stat(parent)
		if err == nil {
			if !info.IsDir() {
				return errors.New("export directory cannot be created")
			}

			return nil
		}

		if parent == filepath.Dir(parent) {
			return errors.New("export directory cannot be created")
		}
	}
}

// zones resolves the camera and GPS zones of a validated configuration.
func (c Configuration) zones() (camera, gps *time.Location, err error) {
	if camera, err = clock.ParseZone(c.CameraZone); err != nil {
		return nil, nil, geoerr.Configuration("camera timezone", err)
	}

	if gps, err = clock.ParseZone(c.Reference.GPSZone); err != nil {
		return nil, nil, geoerr.Configuration("GPS timezone", err)
	}

	return camera, gps, nil
}
