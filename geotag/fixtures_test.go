// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ibenthos/geotag/export"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/photo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var trackStart = time.Date(2023, 6, 16, 8, 0, 0, 0, time.UTC)

// writeGPX writes a track with one point per minute over n minutes.
func writeGPX(t *testing.T, path string, n int) {
	t.Helper()

	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"><trk><name>transect</name><trkseg>`)

	for i := range n {
		fmt.Fprintf(&sb, `<trkpt lat="%g" lon="%g"><ele>%d</ele><time>%s</time></trkpt>`,
			trackLat(i), trackLng(i), -i, trackStart.Add(time.Duration(i)*time.Minute).Format(time.RFC3339))
	}

	sb.WriteString(`</trkseg></trk></gpx>`)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}

func trackLat(i int) float64 { return -16.0 - float64(i)/1024 }
func trackLng(i int) float64 { return 145.0 + float64(i)/1024 }

// writeFakePhoto stores the capture time as the file content, which is what
// fakeInspector reads back.
func writeFakePhoto(t *testing.T, dir, rel, captured string) string {
	t.Helper()

	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(captured), 0o644))

	return p
}

var fakeInspector = photo.InspectorFunc(func(path string) (photo.Capture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return photo.Capture{}, err
	}

	line, _, _ := strings.Cut(string(b), "\n")

	c := photo.Capture{Make: "Fake", Model: "Cam"}
	c.Time, err = photo.ParseExifTime(line, "")

	return c, err
})

type fakeTagger struct {
	mu    sync.Mutex
	fail  map[string]bool
	tags  map[string]photo.Tags
	calls int
	onTag func(src string)
}

func newFakeTagger(failing ...string) *fakeTagger {
	f := &fakeTagger{fail: map[string]bool{}, tags: map[string]photo.Tags{}}
	for _, name := range failing {
		f.fail[name] = true
	}

	return f
}

func (f *fakeTagger) Tag(_ context.Context, src, dst string, tags photo.Tags) error {
	if f.onTag != nil {
		f.onTag(src)
	}

	f.mu.Lock()
	f.calls++
	failing := f.fail[filepath.Base(src)]
	f.mu.Unlock()

	if failing {
		return geoerr.MetadataWrite(src, errors.New("read-only file system"))
	}

	err := photo.WriteAtomic(src, dst, func(tmp string) error {
		fh, err := os.OpenFile(tmp, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return err
		}

		_, err = fh.WriteString("\ntagged")

		return errors.Join(err, fh.Close())
	})
	if err != nil {
		return geoerr.MetadataWrite(src, err)
	}

	f.mu.Lock()
	f.tags[dst] = tags
	f.mu.Unlock()

	return nil
}

func (f *fakeTagger) tagsOf(dst string) (photo.Tags, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tags, ok := f.tags[dst]

	return tags, ok
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

type harness struct {
	dir    string
	cfg    Configuration
	tagger *fakeTagger
	opened int
	closed int
	engine *Engine
	deps   Dependencies
}

func newHarness(t *testing.T, failing ...string) *harness {
	t.Helper()

	dir := t.TempDir()
	h := &harness{dir: dir, tagger: newFakeTagger(failing...)}

	cfg := Defaults()
	cfg.ImportDir = filepath.Join(dir, "import")
	cfg.GPXPath = filepath.Join(dir, "track.gpx")
	cfg.ExportDir = filepath.Join(dir, "export")
	cfg.Workers = 4
	h.cfg = cfg

	require.NoError(t, os.MkdirAll(cfg.ImportDir, 0o755))
	writeGPX(t, cfg.GPXPath, 11)

	h.deps = Dependencies{
		Inspector: fakeInspector,
		Taggers: func(Configuration) (photo.Tagger, io.Closer, error) {
			h.opened++

			return h.tagger, closerFunc(func() error { h.closed++; return nil }), nil
		},
	}
	h.engine = NewEngine(h.deps, zerolog.Nop())

	return h
}

func (h *harness) photo(t *testing.T, rel, captured string) string {
	t.Helper()

	return writeFakePhoto(t, h.cfg.ImportDir, rel, captured)
}

func (h *harness) run(t *testing.T) *BatchReport {
	t.Helper()

	report, err := h.engine.Run(context.Background(), h.cfg)
	require.NoError(t, err)
	require.NotNil(t, report)

	return report
}

type fakeExporter struct {
	name    string
	err     error
	records []export.Record
}

func (f *fakeExporter) Name() string { return f.name }

func (f *fakeExporter) Enabled(Configuration) bool { return true }

func (f *fakeExporter) Export(_ context.Context, cfg Configuration, records []export.Record) (string, error) {
	f.records = records
	if f.err != nil {
		return "", f.err
	}

	return filepath.Join(cfg.ExportDir, f.name+".out"), nil
}

type fakeRecorder struct {
	reports []*BatchReport
}

func (f *fakeRecorder) SaveReport(_ context.Context, r *BatchReport) error {
	f.reports = append(f.reports, r)

	return nil
}
