// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"context"
	"path/filepath"

	"github.com/ibenthos/geotag/export"
)

// Exporter produces an artifact from the geotagged photos of a run.
type Exporter interface {
	Name() string
	Enabled(cfg Configuration) bool
	// Export returns the path of the artifact written.
	Export(ctx context.Context, cfg Configuration, records []export.Record) (string, error)
}

// IFDOExporter writes ifdo.yml.
type IFDOExporter struct{}

func (IFDOExporter) Name() string { return "iFDO" }

func (IFDOExporter) Enabled(cfg Configuration) bool { return cfg.IFDO.Enabled }

func (IFDOExporter) Export(ctx context.Context, cfg Configuration, records []export.Record) (string, error) {
	a := cfg.Attribution
	opts := export.IFDOOptions{
		ImageSetName:      cfg.IFDO.ImageSetName,
		Context:           cfg.IFDO.Context,
		Project:           cfg.IFDO.Project,
		Event:             cfg.IFDO.Campaign,
		PI:                export.Person{Name: a.PIName, ORCID: a.PIORCID},
		Creators:          []export.Person{{Name: a.CollectorName, ORCID: a.CollectorORCID}},
		License:           a.License,
		Copyright:         a.Organisation,
		Abstract:          cfg.IFDO.Abstract,
		Objective:         cfg.IFDO.Objective,
		AltitudeMeters:    cfg.IFDO.AltitudeMeters,
		MetersAboveGround: cfg.IFDO.DistanceAboveGround,
		TargetEnvironment: cfg.IFDO.TargetEnvironment,
	}

	if err := export.WriteIFDO(ctx, cfg.ExportDir, opts, records); err != nil {
		return "", err
	}

	return filepath.Join(cfg.ExportDir, export.IFDOFile), nil
}

// KMLExporter writes images.kml or images.kmz.
type KMLExporter struct{}

func (KMLExporter) Name() string { return "KML" }

func (KMLExporter) Enabled(cfg Configuration) bool { return cfg.KML.Enabled }

func (KMLExporter) Export(ctx context.Context, cfg Configuration, records []export.Record) (string, error) {
	opts := export.KMLOptions{Name: cfg.IFDO.ImageSetName, Thumbnails: cfg.KML.Thumbnails}
	if err := export.WriteKML(ctx, cfg.ExportDir, opts, records); err != nil {
		return "", err
	}

	name := export.KMLFile
	if cfg.KML.Thumbnails {
		name = export.KMZFile
	}

	return filepath.Join(cfg.ExportDir, name), nil
}
