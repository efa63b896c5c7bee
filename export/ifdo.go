// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/ibenthos/geotag/geoerr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	// IFDOVersion is the version of the iFDO standard the document follows.
	IFDOVersion = "v2.1.0"
	// UnknownORCID stands in for a person without an ORCID.
	UnknownORCID = "0000-0000-0000-0000"
	// DateTimeLayout is the iFDO image-datetime layout.
	DateTimeLayout = "2006-01-02 15:04:05.000000"

	hashChunk = 1 << 20
)

// Person is a named contributor with an optional ORCID.
type Person struct {
	Name  string `yaml:"name"`
	ORCID string `yaml:"orcid"`
}

func (p Person) normalized() Person {
	if p.ORCID == "" {
		p.ORCID = UnknownORCID
	}

	return p
}

// IFDOOptions are the image-set wide iFDO properties.
type IFDOOptions struct {
	SetUUID           uuid.UUID // random when zero
	ImageSetName      string
	Context           string
	Project           string
	Event             string
	PI                Person
	Creators          []Person
	License           string
	Copyright         string
	Abstract          string
	Objective         string
	AltitudeMeters    float64
	MetersAboveGround float64
	TargetEnvironment string
}

type named struct {
	Name string `yaml:"name"`
}

type ifdoHeader struct {
	UUID    string `yaml:"image-set-uuid"`
	Name    string `yaml:"image-set-name"`
	Handle  string `yaml:"image-set-handle"`
	Version string `yaml:"image-set-ifdo-version"`
}

type ifdoImage struct {
	DateTime          string   `yaml:"image-datetime"`
	Latitude          float64  `yaml:"image-latitude"`
	Longitude         float64  `yaml:"image-longitude"`
	AltitudeMeters    float64  `yaml:"image-altitude-meters"`
	Context           named    `yaml:"image-context"`
	Project           named    `yaml:"image-project"`
	Event             named    `yaml:"image-event"`
	Platform          named    `yaml:"image-platform"`
	Sensor            named    `yaml:"image-sensor"`
	UUID              string   `yaml:"image-uuid"`
	Hash              string   `yaml:"image-hash-sha256"`
	PI                Person   `yaml:"image-pi"`
	Creators          []Person `yaml:"image-creators"`
	License           named    `yaml:"image-license"`
	Copyright         string   `yaml:"image-copyright"`
	Abstract          string   `yaml:"image-abstract"`
	Objective         string   `yaml:"image-objective"`
	Acquisition       string   `yaml:"image-acquisition"`
	Quality           string   `yaml:"image-quality"`
	Deployment        string   `yaml:"image-deployment"`
	Navigation        string   `yaml:"image-navigation"`
	MetersAboveGround float64  `yaml:"image-meters-above-ground"`
	TargetEnvironment string   `yaml:"image-target-environment"`
}

type ifdoDocument struct {
	Header ifdoHeader             `yaml:"image-set-header"`
	Items  map[string][]ifdoImage `yaml:"image-set-items"`
}

// HashFile returns the hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashChunk)); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ImageUUID names an image by its relative path and content hash, so it is
// stable across runs and distinct for identical files at different paths.
func ImageUUID(rel, hash string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(rel+"\x00"+hash))
}

func (o IFDOOptions) image(r Record, hash string) ifdoImage {
	platform, sensor := r.Platform, r.Sensor
	if platform == "" {
		platform = "Unknown"
	}

	if sensor == "" {
		sensor = "Unknown"
	}

	altitude := o.AltitudeMeters
	if r.Position.Elevation != nil {
		altitude = *r.Position.Elevation
	}

	creators := make([]Person, 0, len(o.Creators))
	for _, c := range o.Creators {
		creators = append(creators, c.normalized())
	}

	return ifdoImage{
		DateTime:          r.Time.UTC().Format(DateTimeLayout),
		Latitude:          r.Position.Lat,
		Longitude:         r.Position.Lng,
		AltitudeMeters:    altitude,
		Context:           named{o.Context},
		Project:           named{o.Project},
		Event:             named{o.Event},
		Platform:          named{platform},
		Sensor:            named{sensor},
		UUID:              ImageUUID(r.RelPath, hash).String(),
		Hash:              hash,
		PI:                o.PI.normalized(),
		Creators:          creators,
		License:           named{o.License},
		Copyright:         o.Copyright,
		Abstract:          o.Abstract,
		Objective:         o.Objective,
		Acquisition:       "photo",
		Quality:           "processed",
		Deployment:        "survey",
		Navigation:        "satellite",
		MetersAboveGround: o.MetersAboveGround,
		TargetEnvironment: o.TargetEnvironment,
	}
}

// WriteIFDO writes ifdo.yml into dir describing records. Photos are hashed
// concurrently.
func WriteIFDO(ctx context.Context, dir string, opts IFDOOptions, records []Record) error {
	if len(records) == 0 {
		return geoerr.Export("no geotagged images to describe in iFDO", nil)
	}

	setUUID := opts.SetUUID
	if setUUID == uuid.Nil {
		setUUID = uuid.New()
	}

	records = sorted(records)
	hashes := make([]string, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, r := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			h, err := HashFile(r.Path)
			hashes[i] = h

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return geoerr.Export("hashing images", err)
	}

	doc := ifdoDocument{
		Header: ifdoHeader{
			UUID:    setUUID.String(),
			Name:    opts.ImageSetName,
			Version: IFDOVersion,
		},
		Items: make(map[string][]ifdoImage, len(records)),
	}

	for i, r := range records {
		doc.Items[r.RelPath] = []ifdoImage{opts.image(r, hashes[i])}
	}

	f, publish, err := createFile(dir, IFDOFile)
	if err != nil {
		return geoerr.Export("writing iFDO", err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		discard(f)

		return geoerr.Export("encoding iFDO", err)
	}

	if err := enc.Close(); err != nil {
		discard(f)

		return geoerr.Export("encoding iFDO", err)
	}

	if err := publish(); err != nil {
		return geoerr.Export("writing iFDO", err)
	}

	return nil
}
