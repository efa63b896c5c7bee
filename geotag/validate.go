// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ibenthos/geotag/clock"
)

var orcidRE = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(v.RegisterValidation("orcid", func(fl validator.FieldLevel) bool {
		return orcidRE.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(clock.DateLayout, fl.Field().String())

		return err == nil
	}))
	must(v.RegisterValidation("isotime", func(fl validator.FieldLevel) bool {
		_, err := clock.ParseDisplayTime("2000-01-01", fl.Field().String(), time.UTC)

		return err == nil
	}))
	must(v.RegisterValidation("zone", func(fl validator.FieldLevel) bool {
		_, err := clock.ParseZone(fl.Field().String())

		return err == nil
	}))

	v.RegisterStructValidation(validateConfiguration, Configuration{})

	return v
}

// validateConfiguration enforces the requirements that depend on toggles.
func validateConfiguration(sl validator.StructLevel) {
	c, ok := sl.Current().Interface().(Configuration)
	if !ok {
		return
	}

	required := func(value any, field string) {
		if reflect.ValueOf(value).IsZero() {
			sl.ReportError(value, field, field, "required", "")
		}
	}

	if c.Synchronized() {
		required(c.Reference.GPSDate, "reference.gps_date")
		required(c.Reference.GPSTime, "reference.gps_time")
	}

	if c.Attribution.Enabled || c.IFDO.Enabled {
		required(c.Attribution.CollectorName, "attribution.collector_name")
		required(c.Attribution.PIName, "attribution.pi_name")
		required(c.Attribution.Organisation, "attribution.organisation")
		required(c.Attribution.License, "attribution.license")
	}

	if c.IFDO.Enabled {
		required(c.IFDO.ImageSetName, "ifdo.image_set_name")
		required(c.IFDO.Context, "ifdo.context")
		required(c.IFDO.Project, "ifdo.project")
		required(c.IFDO.Campaign, "ifdo.campaign")
	}
}

var labels = map[string]string{
	"import_dir":                  "Import directory",
	"gpx_file":                    "GPX file",
	"export_dir":                  "Export directory",
	"camera_timezone":             "Camera timezone",
	"reference.photo":             "GPS photo file",
	"reference.gps_date":          "GPS date",
	"reference.gps_time":          "GPS time",
	"reference.gps_timezone":      "GPS timezone",
	"site.latitude":               "Site latitude",
	"site.longitude":              "Site longitude",
	"attribution.collector_name":  "Collector's name",
	"attribution.collector_orcid": "Collector's ORCID",
	"attribution.pi_name":         "PI name",
	"attribution.pi_orcid":        "Principal Investigator ORCID",
	"attribution.organisation":    "Organisation",
	"attribution.license":         "License",
	"ifdo.image_set_name":         "Image set name",
	"ifdo.context":                "Image context",
	"ifdo.project":                "Project name",
	"ifdo.campaign":               "Campaign name",
	"ifdo.distance_above_ground":  "Distance above ground",
	"out_of_range":                "Out of range policy",
	"workers":                     "Workers",
	"extensions":                  "Extensions",
}

func label(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}

	if l, ok := labels[ns]; ok {
		return l
	}

	if l, ok := labels[fe.Field()]; ok {
		return l
	}

	return ns
}

// fieldError converts a single validation error into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := label(fe)

	switch fe.Tag() {
	case "required":
		return field + " is empty"
	case "dir":
		return field + " does not exist or is not a directory"
	case "file":
		return field + " does not exist or is not a file"
	case "isodate":
		return field + " is not a valid date (YYYY-MM-DD)"
	case "isotime":
		return field + " is not a valid time (HH:MM:SS)"
	case "orcid":
		return field + " is not in the correct format"
	case "zone":
		return fmt.Sprintf("%s %q is not a known timezone", field, fe.Value())
	case "latitude", "longitude":
		return field + " is out of range"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

func translate(err error) []error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []error{err}
	}

	errs := make([]error, 0, len(ve))
	for _, fe := range ve {
		errs = append(errs, errors.New(fieldError(fe)))
	}

	return errs
}
