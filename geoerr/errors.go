// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geoerr defines the error taxonomy shared by the geotagging
// pipeline. Run-level kinds abort a run; per-photo kinds are folded into the
// batch report by the orchestrator.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindUnknown unclassified failure.
	KindUnknown Kind = iota
	// KindConfiguration missing path, bad timestamp or invalid field.
	KindConfiguration
	// KindMalformedTrack unparseable GPX or a point without time/coordinates.
	KindMalformedTrack
	// KindEmptyTrack GPX without track points.
	KindEmptyTrack
	// KindOutOfRange instant outside of the track coverage.
	KindOutOfRange
	// KindMetadataWrite photo metadata could not be written.
	KindMetadataWrite
	// KindExport iFDO or KML artifact could not be produced.
	KindExport
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindConfiguration:  "configuration",
	KindMalformedTrack: "malformed track",
	KindEmptyTrack:     "empty track",
	KindOutOfRange:     "out of range",
	KindMetadataWrite:  "metadata write",
	KindExport:         "export",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Configuration wraps err (usually an errors.Join of every violation).
func Configuration(message string, err error) *Error {
	return New(KindConfiguration, message, err)
}

// MalformedTrack reports an unusable GPX document.
func MalformedTrack(message string, err error) *Error {
	return New(KindMalformedTrack, message, err)
}

// EmptyTrack reports a GPX document without track points.
func EmptyTrack(path string) *Error {
	if path == "" {
		return New(KindEmptyTrack, "track has no points", nil)
	}

	return New(KindEmptyTrack, fmt.Sprintf("track %q has no points", path), nil)
}

// OutOfRange reports an instant the track does not cover.
func OutOfRange(message string) *Error {
	return New(KindOutOfRange, message, nil)
}

// MetadataWrite wraps a per-photo write failure.
func MetadataWrite(path string, err error) *Error {
	return New(KindMetadataWrite, fmt.Sprintf("writing metadata of %s", path), err)
}

// Export wraps an exporter failure.
func Export(message string, err error) *Error {
	return New(KindExport, message, err)
}

// KindOf returns the kind of the first Error found in err's chain.
func KindOf(err error) Kind {
	var geoErr *Error
	if errors.As(err, &geoErr) {
		return geoErr.Kind
	}

	return KindUnknown
}

// IsConfiguration verifies if err is a configuration error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsMalformedTrack verifies if err is a malformed track error.
func IsMalformedTrack(err error) bool { return KindOf(err) == KindMalformedTrack }

// IsEmptyTrack verifies if err is an empty track error.
func IsEmptyTrack(err error) bool { return KindOf(err) == KindEmptyTrack }

// IsOutOfRange verifies if err is an out of range error.
func IsOutOfRange(err error) bool { return KindOf(err) == KindOutOfRange }

// IsMetadataWrite verifies if err is a metadata write error.
func IsMetadataWrite(err error) bool { return KindOf(err) == KindMetadataWrite }

// IsExport verifies if err is an export error.
func IsExport(err error) bool { return KindOf(err) == KindExport }

// IsRunLevel reports whether err aborts a run before processing starts.
func IsRunLevel(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindMalformedTrack, KindEmptyTrack:
		return true
	default:
		return false
	}
}
