// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ibenthos/geotag/geotag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geotag_http_requests_total",
			Help: "HTTP requests served by the geotag API",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geotag_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the geotag API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geotag_runs_total",
			Help: "Geotagging runs by terminal state",
		},
		[]string{"state"},
	)

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geotag_run_duration_seconds",
		Help:    "Wall time of finished geotagging runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	photosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geotag_photos_total",
			Help: "Photos processed by result",
		},
		[]string{"result"},
	)
)

// metricsMiddleware counts requests by route template, so path parameters
// never become label values.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func observeRun(report *geotag.BatchReport) {
	if report == nil {
		return
	}

	runsTotal.WithLabelValues(report.State.String()).Inc()

	if !report.FinishedAt.IsZero() {
		runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	for _, res := range report.PerFile {
		photosTotal.WithLabelValues(res.Status.String()).Inc()
	}
}
