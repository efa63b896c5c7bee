// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) Repository {
	t.Helper()

	db, err := sql.Open("duckdb", "") // In-memory database
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.CreateSchema())
	require.NoError(t, repo.CreateSchema(), "schema creation is repeatable")

	return repo
}

var started = time.Date(2023, 6, 16, 10, 0, 0, 0, time.UTC)

func sampleReport(id string, at time.Time) *geotag.BatchReport {
	pos := spatial.Position{Point: spatial.Point{Lat: -14.6688, Lng: 145.4601}, Elevation: spatial.Float(-6.5)}

	r := &geotag.BatchReport{
		RunID:      id,
		ImportDir:  "/data/dive-12",
		GPXPath:    "/data/dive-12.gpx",
		StartedAt:  at,
		FinishedAt: at.Add(42 * time.Second),
		Offset:     clock.ClockOffset{CameraZone: time.UTC, Drift: 5 * time.Second, Synchronized: true},
		State:      geotag.StateCompleted,
		ExportErr:  geoerr.Export("disk full", nil),
		Counts:     geotag.Counts{Success: 1, Skipped: 1, Total: 2},
		PerFile: map[string]geotag.Result{
			"b/IMG_0002.JPG": {
				Status: geotag.SkippedOutOfTrackRange,
				Reason: "not within range of GPX file",
				Photo: geotag.PhotoRecord{
					Path:       "/data/dive-12/b/IMG_0002.JPG",
					RelPath:    "b/IMG_0002.JPG",
					OutputPath: "/out/b/IMG_0002.JPG",
					CapturedAt: time.Date(2023, 6, 16, 18, 0, 0, 0, time.UTC),
				},
			},
			"a/IMG_0001.JPG": {
				Status: geotag.Success,
				Photo: geotag.PhotoRecord{
					Path:        "/data/dive-12/a/IMG_0001.JPG",
					RelPath:     "a/IMG_0001.JPG",
					OutputPath:  "/out/a/IMG_0001.JPG",
					CapturedAt:  time.Date(2023, 6, 16, 8, 37, 31, 0, time.UTC),
					CorrectedAt: time.Date(2023, 6, 16, 8, 37, 36, 0, time.UTC),
					Position:    &pos,
					Course:      spatial.Float(271.5),
					Platform:    "OM Digital Solutions TG-6",
				},
			},
		},
	}

	return r
}

func TestSaveReport(t *testing.T) {
	repo := setupDB(t)
	ctx := context.Background()

	report := sampleReport("run-1", started)
	require.NoError(t, repo.SaveReport(ctx, report))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.True(t, started.Equal(run.StartedAt))
	assert.True(t, started.Add(42*time.Second).Equal(run.FinishedAt))
	assert.Equal(t, "/data/dive-12", run.ImportDir)
	assert.Equal(t, "/data/dive-12.gpx", run.GPXPath)
	assert.Equal(t, 5*time.Second, run.Drift)
	assert.Equal(t, geotag.StateCompleted, run.State)
	assert.False(t, run.Canceled)
	assert.Empty(t, run.Error)
	assert.Equal(t, "disk full", run.ExportError)
	assert.Equal(t, geotag.Counts{Success: 1, Skipped: 1, Total: 2}, run.Counts)

	photos, err := repo.RunPhotos("run-1")
	require.NoError(t, err)
	require.Len(t, photos, 2)

	ok := photos[0]
	assert.Equal(t, "a/IMG_0001.JPG", ok.RelPath)
	assert.Equal(t, geotag.Success, ok.Status)
	assert.Empty(t, ok.Reason)
	assert.Equal(t, "OM Digital Solutions TG-6", ok.Platform)
	assert.True(t, time.Date(2023, 6, 16, 8, 37, 36, 0, time.UTC).Equal(ok.CorrectedAt))
	require.NotNil(t, ok.Position)
	assert.InDelta(t, -14.6688, ok.Position.Lat, 1e-9)
	assert.InDelta(t, 145.4601, ok.Position.Lng, 1e-9)
	require.NotNil(t, ok.Position.Elevation)
	assert.InDelta(t, -6.5, *ok.Position.Elevation, 1e-9)
	require.NotNil(t, ok.Course)
	assert.InDelta(t, 271.5, *ok.Course, 1e-9)

	want, err := spatial.Cells(ok.Position.Point, MinH3Res, MaxH3Res)
	require.NoError(t, err)
	require.Len(t, ok.Cells, len(want))

	for i := range want {
		assert.Equal(t, uint64(want[i]), ok.Cells[i])
	}

	skipped := photos[1]
	assert.Equal(t, geotag.SkippedOutOfTrackRange, skipped.Status)
	assert.Equal(t, "not within range of GPX file", skipped.Reason)
	assert.Nil(t, skipped.Position)
	assert.Nil(t, skipped.Course)
	assert.Empty(t, skipped.Cells)
	assert.True(t, skipped.CorrectedAt.IsZero())
}

func TestSaveReport_ReplacesRun(t *testing.T) {
	repo := setupDB(t)
	ctx := context.Background()

	report := sampleReport("run-1", started)
	require.NoError(t, repo.SaveReport(ctx, report))

	delete(report.PerFile, "b/IMG_0002.JPG")
	report.State = geotag.StateFailed
	report.Err = errors.New("boom")
	report.ExportErr = nil
	require.NoError(t, repo.SaveReport(ctx, report))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, geotag.StateFailed, run.State)
	assert.Equal(t, "boom", run.Error)
	assert.Empty(t, run.ExportError)

	photos, err := repo.RunPhotos("run-1")
	require.NoError(t, err)
	assert.Len(t, photos, 1)
}

func TestListRuns(t *testing.T) {
	repo := setupDB(t)
	ctx := context.Background()

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, repo.SaveReport(ctx, sampleReport(id, started.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := repo.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)

	photos, err := repo.RunPhotos("unknown")
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestGetRun_NotFound(t *testing.T) {
	repo := setupDB(t)

	_, err := repo.GetRun("missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestOpen(t *testing.T) {
	path := t.TempDir() + "/ledger.duckdb"

	db, repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveReport(context.Background(), sampleReport("run-1", started)))
	require.NoError(t, db.Close())

	db, repo, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	runs, err := repo.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
