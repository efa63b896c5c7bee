// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes a geotag.Engine over HTTP for the desktop UI.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ibenthos/geotag/clock"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/geotag"
	"github.com/ibenthos/geotag/spatial"
	"github.com/ibenthos/geotag/track"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// CenterH3Res is the resolution of the cell returned with a site estimate.
const CenterH3Res = 8

type Server struct {
	engine *geotag.Engine
	base   geotag.Configuration
	log    zerolog.Logger
}

// New returns a server driving engine. Run requests are applied on top of
// base.
func New(engine *geotag.Engine, base geotag.Configuration, log zerolog.Logger) *Server {
	return &Server{engine: engine, base: base, log: log}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metricsMiddleware(), s.requestLog())

	r.GET("/api/timezones", s.timezones)
	r.POST("/api/runs", s.startRun)
	r.GET("/api/runs/current", s.currentRun)
	r.GET("/api/runs/current/events", s.runEvents)
	r.POST("/api/runs/current/cancel", s.cancelRun)
	r.POST("/api/tracks/center", s.trackCenter)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Run serves on addr until ctx is done, then cancels the active run and
// shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)

	go func() { errc <- srv.ListenAndServe() }()

	s.log.Info().Str("addr", addr).Msg("Serving geotag API")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	if s.engine.Cancel() {
		s.log.Info().Msg("Canceled active run")
	}

	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdown)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *Server) timezones(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"zones": clock.Zones, "default": clock.DefaultZone})
}

func (s *Server) startRun(ctx *gin.Context) {
	cfg := s.base
	if err := ctx.ShouldBindJSON(&cfg); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": []string{err.Error()}})

		return
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "details": geotag.ErrorLines(err)})

		return
	}

	id, run, err := s.engine.Reserve()
	if err != nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})

		return
	}

	// the run outlives the request
	runCtx := context.WithoutCancel(ctx.Request.Context())

	go func() {
		report, err := run(runCtx, cfg)
		observeRun(report)

		if err != nil {
			s.log.Warn().Err(err).Str("run_id", id).Msg("Run failed")
		}
	}()

	ctx.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

type runStatus struct {
	Running bool                `json:"running"`
	State   geotag.State        `json:"state"`
	Percent int                 `json:"percent"`
	Current int64               `json:"current"`
	Total   int64               `json:"total"`
	Lines   []string            `json:"lines"`
	Report  *geotag.BatchReport `json:"report,omitempty"`
}

func (s *Server) currentRun(ctx *gin.Context) {
	running := s.engine.Running()
	last := s.engine.Last()

	if !running && last == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no run has been started"})

		return
	}

	fb := s.engine.Feedback()
	current, total := fb.Progress()

	status := runStatus{
		Running: running,
		State:   s.engine.State(),
		Percent: fb.Percent(),
		Current: current,
		Total:   total,
		Lines:   fb.Lines(),
	}

	if !running {
		status.Report = last
	}

	ctx.JSON(http.StatusOK, status)
}

// runEvents streams feedback events until the run ends or the client leaves.
func (s *Server) runEvents(ctx *gin.Context) {
	events, unsubscribe := s.engine.Feedback().Subscribe(64)
	defer unsubscribe()

	ctx.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}

			ctx.SSEvent("feedback", ev)

			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) cancelRun(ctx *gin.Context) {
	if !s.engine.Cancel() {
		ctx.JSON(http.StatusConflict, gin.H{"error": "no run in progress"})

		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"canceled": true})
}

type centerRequest struct {
	GPX string `json:"gpx" binding:"required"`
}

type centerResponse struct {
	Name   string           `json:"name,omitempty"`
	Points int              `json:"points"`
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
	Length float64          `json:"length_m"`
	Center spatial.Position `json:"center"`
	H3Cell string           `json:"h3_cell"`
	H3Res  int              `json:"h3_res"`
}

// trackCenter estimates the dive site as the mean of the track points.
func (s *Server) trackCenter(ctx *gin.Context) {
	var req centerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "gpx is required"})

		return
	}

	trk, err := track.Load(req.GPX)
	if err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": geoerr.KindOf(err).String()})

		return
	}

	center := trk.Center()

	cell, err := spatial.Cell(center.Point, CenterH3Res)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, centerResponse{
		Name:   trk.Name(),
		Points: trk.Len(),
		Start:  trk.Start(),
		End:    trk.End(),
		Length: trk.Length(),
		Center: center,
		H3Cell: spatial.CellString(cell),
		H3Res:  CenterH3Res,
	})
}
