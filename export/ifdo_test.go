// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readIFDO(t *testing.T, dir string) ifdoDocument {
	t.Helper()

	b, err := os.ReadFile(filepath.Join(dir, IFDOFile))
	require.NoError(t, err)

	var doc ifdoDocument
	require.NoError(t, yaml.Unmarshal(b, &doc))

	return doc
}

func testIFDOOptions() IFDOOptions {
	return IFDOOptions{
		SetUUID:           uuid.MustParse("6f1f5a44-2d4b-4a36-9b4a-8f1f2c9d1e01"),
		ImageSetName:      "Lizard Island 2023",
		Context:           "Reef monitoring",
		Project:           "iBenthos",
		Event:             "LIZ-2023-06",
		PI:                Person{Name: "Brendan Do", ORCID: "0000-0001-5109-3700"},
		Creators:          []Person{{Name: "Ana Núñez"}},
		License:           "CC BY 4.0",
		Copyright:         "CSIRO",
		Abstract:          "Benthic photo transects.",
		AltitudeMeters:    -2,
		MetersAboveGround: 0.9,
		TargetEnvironment: "Shallow Benthic",
	}
}

func TestWriteIFDO(t *testing.T) {
	dir := t.TempDir()
	records := fixture(t, dir, "site b/IMG_2.JPG", "IMG_1.JPG")
	records[0].Position.Elevation = spatial.Float(-5.5)
	records[0].Sensor = "TG6-0042"

	require.NoError(t, WriteIFDO(context.Background(), dir, testIFDOOptions(), records))

	doc := readIFDO(t, dir)
	assert.Equal(t, ifdoHeader{
		UUID:    "6f1f5a44-2d4b-4a36-9b4a-8f1f2c9d1e01",
		Name:    "Lizard Island 2023",
		Version: IFDOVersion,
	}, doc.Header)
	require.Len(t, doc.Items, 2)

	one := doc.Items["IMG_1.JPG"]
	require.Len(t, one, 1)
	assert.Equal(t, "2023-06-16 00:37:37.000000", one[0].DateTime)
	assert.InDelta(t, -2.0, one[0].AltitudeMeters, 1e-9)
	assert.Equal(t, "Unknown", one[0].Sensor.Name)
	assert.Equal(t, "OLYMPUS TG-6", one[0].Platform.Name)
	assert.Equal(t, []Person{{Name: "Ana Núñez", ORCID: UnknownORCID}}, one[0].Creators)
	assert.Equal(t, "0000-0001-5109-3700", one[0].PI.ORCID)
	assert.Equal(t, "photo", one[0].Acquisition)
	assert.Equal(t, "satellite", one[0].Navigation)

	content, err := os.ReadFile(records[1].Path)
	require.NoError(t, err)
	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), one[0].Hash)
	assert.Equal(t, ImageUUID("IMG_1.JPG", one[0].Hash).String(), one[0].UUID)

	two := doc.Items["site b/IMG_2.JPG"]
	require.Len(t, two, 1)
	assert.InDelta(t, -5.5, two[0].AltitudeMeters, 1e-9)
	assert.Equal(t, "TG6-0042", two[0].Sensor.Name)
	assert.Equal(t, one[0].Hash, two[0].Hash)
	assert.NotEqual(t, one[0].UUID, two[0].UUID)
}

func TestImageUUID(t *testing.T) {
	const hash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	assert.Equal(t, ImageUUID("a/IMG_1.JPG", hash), ImageUUID("a/IMG_1.JPG", hash))
	assert.NotEqual(t, ImageUUID("a/IMG_1.JPG", hash), ImageUUID("b/IMG_1.JPG", hash))
	assert.NotEqual(t, ImageUUID("a/IMG_1.JPG", hash), ImageUUID("a/IMG_1.JPG", strings.Repeat("0", 64)))
	assert.Equal(t, uuid.Version(5), ImageUUID("a/IMG_1.JPG", hash).Version())
}

func TestWriteIFDO_RandomSetUUID(t *testing.T) {
	dir := t.TempDir()
	records := fixture(t, dir, "a.jpg")

	opts := testIFDOOptions()
	opts.SetUUID = uuid.Nil
	require.NoError(t, WriteIFDO(context.Background(), dir, opts, records))

	id, err := uuid.Parse(readIFDO(t, dir).Header.UUID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
}

func TestWriteIFDO_Errors(t *testing.T) {
	dir := t.TempDir()

	err := WriteIFDO(context.Background(), dir, testIFDOOptions(), nil)
	require.Error(t, err)
	assert.True(t, geoerr.IsExport(err))

	missing := []Record{{RelPath: "gone.jpg", Path: filepath.Join(dir, "gone.jpg")}}
	err = WriteIFDO(context.Background(), dir, testIFDOOptions(), missing)
	require.Error(t, err)
	assert.True(t, geoerr.IsExport(err))
	assert.NoFileExists(t, filepath.Join(dir, IFDOFile))
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.bin")

	// spans several chunks
	content := make([]byte, 3*hashChunk+17)
	for i := range content {
		content[i] = byte(i % 251)
	}

	require.NoError(t, os.WriteFile(p, content, 0o644))

	got, err := HashFile(p)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}
