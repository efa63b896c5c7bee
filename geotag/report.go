// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geotag drives a geotagging run: it loads the track, measures the
// camera clock drift, tags every photo of the import directory through a
// bounded worker pool and exports the scientific metadata of the result.
package geotag

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/export"
	"github.com/ibenthos/geotag/photo"
	"github.com/ibenthos/geotag/spatial"
)

// State is the phase a run is in.
type State int

const (
	StateIdle State = iota
	StateLoadingTrack
	StateEstimatingOffset
	StateProcessing
	StateExporting
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"idle", "loading_track", "estimating_offset", "processing", "exporting", "completed", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}

	return StateIdle, fmt.Errorf("unknown state %q", s)
}

// Status is the outcome of a single photo.
type Status int

const (
	Success Status = iota
	SkippedOutOfTrackRange
	Failed
	NotProcessed
)

var statusNames = [...]string{"success", "skipped_out_of_track_range", "failed", "not_processed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}

	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}

	return NotProcessed, fmt.Errorf("unknown status %q", s)
}

// PhotoRecord follows one photo through the pipeline.
type PhotoRecord struct {
	Path        string             `json:"path"`
	RelPath     string             `json:"rel_path"`
	OutputPath  string             `json:"output_path"`
	CapturedAt  time.Time          `json:"captured_at,omitzero"`
	CorrectedAt time.Time          `json:"corrected_at,omitzero"`
	Position    *spatial.Position  `json:"position,omitempty"`
	Course      *float64           `json:"course,omitempty"`
	Platform    string             `json:"platform,omitempty"`
	Attribution *photo.Attribution `json:"attribution,omitempty"`
}

// Result is the outcome of a photo. Reason is set for failures.
type Result struct {
	Status Status      `json:"status"`
	Reason string      `json:"reason,omitempty"`
	Photo  PhotoRecord `json:"photo"`
}

// Counts summarizes a report.
type Counts struct {
	Success      int `json:"success"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	NotProcessed int `json:"not_processed"`
	Total        int `json:"total"`
}

func (c *Counts) add(s Status) {
	c.Total++

	switch s {
	case Success:
		c.Success++
	case SkippedOutOfTrackRange:
		c.Skipped++
	case Failed:
		c.Failed++
	case NotProcessed:
		c.NotProcessed++
	}
}

// BatchReport is the outcome of a run, keyed by the photo path relative to
// the import directory.
type BatchReport struct {
	RunID      string            `json:"run_id"`
	ImportDir  string            `json:"import_dir"`
	GPXPath    string            `json:"gpx_file"`
	PerFile    map[string]Result `json:"per_file"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Counts     Counts            `json:"counts"`
	Offset     clock.ClockOffset `json:"-"`
	State      State             `json:"state"`
	Canceled   bool              `json:"canceled"`
	Err        error             `json:"-"`
	ExportErr  error             `json:"-"`
}

func newReport(id string, cfg Configuration, now time.Time) *BatchReport {
	return &BatchReport{
		RunID:     id,
		ImportDir: cfg.ImportDir,
		GPXPath:   cfg.GPXPath,
		PerFile:   make(map[string]Result),
		StartedAt: now,
	}
}

func (r *BatchReport) set(res Result) {
	r.PerFile[res.Photo.RelPath] = res
}

func (r *BatchReport) tally() {
	r.Counts = Counts{}
	for _, res := range r.PerFile {
		r.Counts.add(res.Status)
	}
}

// Results returns every result sorted by relative path.
func (r *BatchReport) Results() []Result {
	out := make([]Result, 0, len(r.PerFile))
	for _, res := range r.PerFile {
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Photo.RelPath < out[j].Photo.RelPath })

	return out
}

// Successful returns the geotagged photos sorted by relative path.
func (r *BatchReport) Successful() []PhotoRecord {
	var out []PhotoRecord

	for _, res := range r.Results() {
		if res.Status == Success {
			out = append(out, res.Photo)
		}
	}

	return out
}

// Drift is the measured clock drift.
func (r *BatchReport) Drift() time.Duration { return r.Offset.Drift }

// MarshalJSON adds the error strings and drift.
func (r *BatchReport) MarshalJSON() ([]byte, error) {
	type plain BatchReport

	errString := func(err error) string {
		if err == nil {
			return ""
		}

		return err.Error()
	}

	return json.Marshal(struct {
		*plain
		DriftMS   int64  `json:"drift_ms"`
		Error     string `json:"error,omitempty"`
		ExportErr string `json:"export_error,omitempty"`
	}{
		plain:     (*plain)(r),
		DriftMS:   r.Offset.Drift.Milliseconds(),
		Error:     errString(r.Err),
		ExportErr: errString(r.ExportErr),
	})
}

func exportRecords(records []PhotoRecord, sensor string) []export.Record {
	out := make([]export.Record, 0, len(records))

	for _, p := range records {
		if p.Position == nil {
			continue
		}

		out = append(out, export.Record{
			RelPath:  p.RelPath,
			Path:     p.OutputPath,
			Time:     p.CorrectedAt,
			Position: *p.Position,
			Platform: p.Platform,
			Sensor:   sensor,
		})
	}

	return out
}
