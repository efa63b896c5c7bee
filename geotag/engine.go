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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/photo"
	"github.com/ibenthos/geotag/track"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned by Run while another run is active.
var ErrRunInProgress = errors.New("a geotagging run is already in progress")

// TaggerFactory starts the metadata tool of a run. The closer is always
// called when the run ends.
type TaggerFactory func(cfg Configuration) (photo.Tagger, io.Closer, error)

// ExiftoolTaggers starts one exiftool process per worker.
func ExiftoolTaggers(cfg Configuration) (photo.Tagger, io.Closer, error) {
	pool, err := photo.NewExiftoolPool(cfg.Workers, cfg.ExiftoolPath)
	if err != nil {
		return nil, nil, err
	}

	return pool, pool, nil
}

// Recorder persists finished runs.
type Recorder interface {
	SaveReport(ctx context.Context, report *BatchReport) error
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	// Inspector reads capture times. When nil the tagger is used if it
	// implements photo.Inspector, else the in-process EXIF reader.
	Inspector photo.Inspector
	Taggers   TaggerFactory
	Exporters []Exporter
	// Recorder is optional.
	Recorder Recorder
	// ProgressBar draws a bar on stderr when it is a terminal.
	ProgressBar bool
	Now         func() time.Time
}

// DefaultDependencies wires exiftool and both exporters.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Taggers:     ExiftoolTaggers,
		Exporters:   []Exporter{IFDOExporter{}, KMLExporter{}},
		ProgressBar: true,
	}
}

// Engine runs one geotagging batch at a time.
type Engine struct {
	deps    Dependencies
	log     zerolog.Logger
	running atomic.Bool

	mu       sync.Mutex
	state    State
	feedback *Feedback
	cancel   context.CancelFunc
	last     *BatchReport
}

// NewEngine returns an idle engine.
func NewEngine(deps Dependencies, log zerolog.Logger) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Taggers == nil {
		deps.Taggers = ExiftoolTaggers
	}

	return &Engine{deps: deps, log: log, feedback: NewFeedback()}
}

// State is the state of the current or last run.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Feedback is the log of the current or last run.
func (e *Engine) Feedback() *Feedback {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.feedback
}

// Last returns the report of the last finished run, nil if none.
func (e *Engine) Last() *BatchReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.last
}

// Running reports whether a run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Cancel stops dispatching photos of the current run. It returns false when
// nothing is running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel == nil {
		return false
	}

	e.cancel()

	return true
}

// Reserve claims the engine for a run started later with the returned
// function, which reports under the returned id. The run's Feedback is
// installed and Cancel is effective as soon as Reserve returns.
func (e *Engine) Reserve() (string, func(ctx context.Context, cfg Configuration) (*BatchReport, error), error) {
	if !e.running.CompareAndSwap(false, true) {
		return "", nil, ErrRunInProgress
	}

	id := uuid.NewString()
	fb := NewFeedback()
	reserved, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.state = StateIdle
	e.feedback = fb
	e.cancel = cancel
	e.mu.Unlock()

	return id, func(ctx context.Context, cfg Configuration) (*BatchReport, error) {
		return e.run(ctx, id, cfg, fb, reserved, cancel)
	}, nil
}

// Run validates cfg and geotags every photo of cfg.ImportDir. Per-photo
// failures are reported in the BatchReport; only configuration and track
// errors are returned.
func (e *Engine) Run(ctx context.Context, cfg Configuration) (*BatchReport, error) {
	_, run, err := e.Reserve()
	if err != nil {
		return nil, err
	}

	return run(ctx, cfg)
}

func (e *Engine) run(
	ctx context.Context,
	id string,
	cfg Configuration,
	fb *Feedback,
	reserved context.Context,
	cancelReserved context.CancelFunc,
) (*BatchReport, error) {
	defer e.running.Store(false)
	defer cancelReserved()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancel may have been called between Reserve and run.
	stop := context.AfterFunc(reserved, cancel)
	defer stop()

	if reserved.Err() != nil {
		cancel()
	}

	cfg = cfg.Normalize()
	report := newReport(id, cfg, e.deps.Now())

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.last = report
		e.mu.Unlock()
		fb.close()
	}()

	r := &run{
		engine: e,
		cfg:    cfg,
		report: report,
		fb:     fb,
		log:    e.log.With().Str("run_id", report.RunID).Logger(),
	}

	return r.execute(ctx)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// run holds the state of a single batch.
type run struct {
	engine    *Engine
	cfg       Configuration
	report    *BatchReport
	fb        *Feedback
	log       zerolog.Logger
	tagger    photo.Tagger
	inspector photo.Inspector
	locator   *track.Interpolator
	offset    clock.ClockOffset
}

type job struct {
	src, rel, dst string
}

func (r *run) transition(s State) {
	r.engine.setState(s)
	r.fb.setState(s)
	r.log.Debug().Stringer("state", s).Msg("Transition")
}

func (r *run) execute(ctx context.Context) (*BatchReport, error) {
	r.log.Info().Str("import_dir", r.cfg.ImportDir).Str("gpx", r.cfg.GPXPath).Msg("Starting geotagging run")
	r.fb.Line("Validating input...")

	if err := r.cfg.Validate(); err != nil {
		r.fb.Line("Validation failed")

		for _, line := range ErrorLines(err) {
			r.fb.Line(line)
		}

		return r.fail(ctx, err)
	}

	r.transition(StateLoadingTrack)

	trk, err := track.Load(r.cfg.GPXPath)
	if err != nil {
		r.fb.Line(fmt.Sprintf("Could not load GPX file: %v", err))

		return r.fail(ctx, err)
	}

	r.locator = track.NewInterpolator(trk)
	r.log.Info().
		Int("points", trk.Len()).
		Time("start", trk.Start()).
		Time("end", trk.End()).
		Msg("Track loaded")

	tagger, closer, err := r.engine.deps.Taggers(r.cfg)
	if err != nil {
		r.fb.Line(fmt.Sprintf("Could not start metadata tool: %v", err))

		return r.fail(ctx, geoerr.Configuration("starting metadata tool", err))
	}

	defer func() {
		if err := closer.Close(); err != nil {
			r.log.Warn().Err(err).Msg("Closing metadata tool")
		}
	}()

	r.tagger = tagger
	r.inspector = r.engine.inspector(tagger)

	r.transition(StateEstimatingOffset)

	if r.offset, err = r.estimate(); err != nil {
		r.fb.Line(err.Error())

		return r.fail(ctx, err)
	}

	r.report.Offset = r.offset
	r.log.Info().Stringer("offset", r.offset).Msg("Clock offset estimated")

	if r.cfg.Synchronized() {
		r.fb.Line("Geotagging images using GPS photo synchronization...")
	} else {
		r.fb.Line("Geotagging images assuming camera and GPS times are synchronized...")
	}

	jobs, err := r.jobs()
	if err != nil {
		r.fb.Line(err.Error())

		return r.fail(ctx, err)
	}

	r.transition(StateProcessing)
	r.fb.Line("Processing images...")
	r.process(ctx, jobs)
	r.report.tally()

	if ctx.Err() != nil {
		r.report.Canceled = true
		r.fb.Line("Geotagging canceled, remaining images were not processed.")
	} else {
		r.export(ctx)
	}

	c := r.report.Counts
	r.fb.Line(fmt.Sprintf("Finished geotagging images. %d geotagged, %d skipped, %d failed, %d not processed.",
		c.Success, c.Skipped, c.Failed, c.NotProcessed))

	r.report.State = StateCompleted
	r.report.FinishedAt = r.engine.deps.Now()
	r.transition(StateCompleted)
	r.log.Info().
		Int("success", c.Success).
		Int("skipped", c.Skipped).
		Int("failed", c.Failed).
		Int("not_processed", c.NotProcessed).
		Dur("elapsed", r.report.FinishedAt.Sub(r.report.StartedAt)).
		Msg("Geotagging run complete")
	r.record(ctx)

	return r.report, nil
}

func (r *run) fail(ctx context.Context, err error) (*BatchReport, error) {
	r.report.Err = err
	r.report.State = StateFailed
	r.report.FinishedAt = r.engine.deps.Now()
	r.transition(StateFailed)
	r.log.Error().Err(err).Stringer("kind", geoerr.KindOf(err)).Msg("Geotagging run failed")
	r.record(ctx)

	return r.report, err
}

func (r *run) record(ctx context.Context) {
	if r.engine.deps.Recorder == nil {
		return
	}

	if err := r.engine.deps.Recorder.SaveReport(context.WithoutCancel(ctx), r.report); err != nil {
		r.log.Warn().Err(err).Msg("Saving run to ledger")
	}
}

func (e *Engine) inspector(tagger photo.Tagger) photo.Inspector {
	if e.deps.Inspector != nil {
		return e.deps.Inspector
	}

	if in, ok := tagger.(photo.Inspector); ok {
		return in
	}

	return photo.InspectorFunc(photo.ReadCapture)
}

func (r *run) estimate() (clock.ClockOffset, error) {
	cameraZone, gpsZone, err := r.cfg.zones()
	if err != nil {
		return clock.ClockOffset{}, err
	}

	if !r.cfg.Synchronized() {
		return clock.NoReference(cameraZone), nil
	}

	capture, err := r.inspector.Inspect(r.cfg.Reference.Photo)
	if err != nil {
		return clock.ClockOffset{}, geoerr.Configuration(
			fmt.Sprintf("GPS photo %s cannot be used", r.cfg.Reference.Photo), err)
	}

	return clock.Estimate(clock.Reference{
		CameraTime: capture.Time,
		CameraZone: cameraZone,
		GPSDate:    r.cfg.Reference.GPSDate,
		GPSTime:    r.cfg.Reference.GPSTime,
		GPSZone:    gpsZone,
	})
}

func (r *run) jobs() ([]job, error) {
	if err := os.MkdirAll(r.cfg.ExportDir, 0o755); err != nil {
		return nil, geoerr.Configuration("creating export directory", err)
	}

	rels, err := Enumerate(r.cfg.ImportDir, r.cfg.ExportDir, r.cfg.Extensions)
	if err != nil {
		return nil, geoerr.Configuration("listing photos", err)
	}

	jobs := make([]job, 0, len(rels))
	for _, rel := range rels {
		jobs = append(jobs, job{
			src: filepath.Join(r.cfg.ImportDir, filepath.FromSlash(rel)),
			rel: rel,
			dst: filepath.Join(r.cfg.ExportDir, filepath.FromSlash(rel)),
		})
	}

	r.log.Info().Int("photos", len(jobs)).Msg("Photos enumerated")

	return jobs, nil
}

// process tags every job through the worker pool. Dispatch stops when ctx
// is canceled; photos already dispatched run to completion.
func (r *run) process(ctx context.Context, jobs []job) {
	r.fb.start(len(jobs))

	var bar *progressbar.ProgressBar
	if r.engine.deps.ProgressBar && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("Geotagging"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]Result, len(jobs))
	work := context.WithoutCancel(ctx)
	semaphore := make(chan struct{}, r.cfg.Workers)

	var g errgroup.Group

	dispatched := 0

dispatch:
	for i, j := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		if ctx.Err() != nil {
			<-semaphore

			break dispatch
		}

		dispatched++

		g.Go(func() error {
			defer func() { <-semaphore }()

			results[i] = r.processPhoto(work, j)
			r.fb.advance()

			if bar != nil {
				if err := bar.Add(1); err != nil {
					r.log.Debug().Err(err).Msg("Updating progress bar")
				}
			}

			return nil
		})
	}

	_ = g.Wait()

	for i := dispatched; i < len(jobs); i++ {
		results[i] = Result{Status: NotProcessed, Reason: "canceled", Photo: jobs[i].record()}
	}

	for _, res := range results {
		r.report.set(res)
	}
}

func (j job) record() PhotoRecord {
	return PhotoRecord{Path: j.src, RelPath: j.rel, OutputPath: j.dst}
}

func (r *run) processPhoto(ctx context.Context, j job) Result {
	rec := j.record()
	log := r.log.With().Str("photo", j.rel).Logger()

	finish := func(status Status, reason string) Result {
		ev := log.Debug()
		if status == Failed {
			ev = log.Warn().Str("reason", reason)
		}

		ev.Stringer("result", status).Msg("Photo processed")

		return Result{Status: status, Reason: reason, Photo: rec}
	}

	capture, err := r.inspector.Inspect(j.src)
	if err != nil {
		if errors.Is(err, photo.ErrNoCaptureTime) {
			r.fb.Line(fmt.Sprintf("Image %s does not contain time data. Skipping this image.", j.src))

			return finish(Failed, photo.ErrNoCaptureTime.Error())
		}

		r.fb.Line(fmt.Sprintf("Image %s could not be read: %v", j.src, err))

		return finish(Failed, err.Error())
	}

	rec.CapturedAt = capture.Time
	rec.CorrectedAt = r.offset.Apply(capture.Time)
	rec.Platform = capture.Platform()
	attribution := r.cfg.PhotoAttribution()

	fix, err := r.locator.Locate(rec.CorrectedAt)
	if err != nil {
		r.fb.Line(fmt.Sprintf("Image %s not within range of GPX file. Skipping this image.", j.src))

		if r.cfg.OutOfRange == OutOfRangeAttribution && attribution != nil {
			if err := r.tagger.Tag(ctx, j.src, j.dst, attribution.Tags()); err != nil {
				r.fb.Line(fmt.Sprintf("Image %s could not be written: %s", j.src, reason(err)))

				return finish(Failed, reason(err))
			}

			rec.Attribution = attribution
		}

		return finish(SkippedOutOfTrackRange, "not within range of GPX file")
	}

	tags := photo.GeoTags(fix.Position, fix.Course, rec.CorrectedAt)
	if attribution != nil {
		tags = tags.Merge(attribution.Tags())
	}

	if err := r.tagger.Tag(ctx, j.src, j.dst, tags); err != nil {
		r.fb.Line(fmt.Sprintf("Image %s could not be written: %s", j.src, reason(err)))

		return finish(Failed, reason(err))
	}

	pos := fix.Position
	rec.Position = &pos
	rec.Course = fix.Course
	rec.Attribution = attribution

	return finish(Success, "")
}

// reason strips the metadata write wrapper, which repeats the photo path.
func reason(err error) string {
	var ge *geoerr.Error
	if errors.As(err, &ge) && ge.Kind == geoerr.KindMetadataWrite && ge.Err != nil {
		return ge.Err.Error()
	}

	return err.Error()
}

func (r *run) export(ctx context.Context) {
	var enabled []Exporter

	for _, ex := range r.engine.deps.Exporters {
		if ex.Enabled(r.cfg) {
			enabled = append(enabled, ex)
		}
	}

	if len(enabled) == 0 {
		return
	}

	r.transition(StateExporting)

	records := exportRecords(r.report.Successful(), r.cfg.CameraID)

	var errs []error

	for _, ex := range enabled {
		path, err := ex.Export(ctx, r.cfg, records)
		if err != nil {
			r.fb.Line(fmt.Sprintf("%s export failed: %v", ex.Name(), err))
			r.log.Error().Err(err).Str("exporter", ex.Name()).Msg("Export failed")
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))

			continue
		}

		r.fb.Line(fmt.Sprintf("%s file saved to %s", ex.Name(), path))
		r.log.Info().Str("exporter", ex.Name()).Str("path", path).Msg("Exported")
	}

	r.report.ExportErr = errors.Join(errs...)
}

// ErrorLines splits a joined configuration error into one line per cause.
func ErrorLines(err error) []string {
	var ge *geoerr.Error
	if errors.As(err, &ge) && ge.Err != nil {
		err = ge.Err
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, e.Error())
		}

		return lines
	}

	return []string{err.Error()}
}
