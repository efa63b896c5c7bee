// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package photo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/ibenthos/geotag/geoerr"
)

// Tagger writes tags into a copy of src published at dst.
type Tagger interface {
	Tag(ctx context.Context, src, dst string, tags Tags) error
}

// ExiftoolPool keeps a fixed number of stay-open exiftool processes. Each
// call borrows one process exclusively. Close must be called to stop them.
type ExiftoolPool struct {
	procs chan *exiftool.Exiftool
	all   []*exiftool.Exiftool
	once  sync.Once
}

// NewExiftoolPool starts size exiftool processes. binary overrides the
// executable looked up in PATH.
func NewExiftoolPool(size int, binary string) (*ExiftoolPool, error) {
	if size < 1 {
		size = 1
	}

	var opts []func(*exiftool.Exiftool) error
	if binary != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binary))
	}

	p := &ExiftoolPool{procs: make(chan *exiftool.Exiftool, size)}

	for range size {
		et, err := exiftool.NewExiftool(opts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("starting exiftool: %w", err), p.Close())
		}

		p.all = append(p.all, et)
		p.procs <- et
	}

	return p, nil
}

func (p *ExiftoolPool) acquire(ctx context.Context) (*exiftool.Exiftool, error) {
	select {
	case et := <-p.procs:
		return et, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ExiftoolPool) release(et *exiftool.Exiftool) {
	p.procs <- et
}

// Inspect reads capture metadata, trying the in-process EXIF decoder first
// and falling back to exiftool for formats it cannot parse.
func (p *ExiftoolPool) Inspect(path string) (Capture, error) {
	c, err := ReadCapture(path)
	if err == nil || (errors.Is(err, ErrNoCaptureTime) && c.Make != "") {
		return c, err
	}

	et, err := p.acquire(context.Background())
	if err != nil {
		return Capture{}, err
	}
	defer p.release(et)

	md := et.ExtractMetadata(path)
	if len(md) == 0 {
		return Capture{}, fmt.Errorf("exiftool returned no metadata for %s", path)
	}

	if md[0].Err != nil {
		return Capture{}, md[0].Err
	}

	get := func(k string) string {
		s, _ := md[0].GetString(k)

		return s
	}

	c = Capture{Make: get("Make"), Model: get("Model")}

	raw := get("DateTimeOriginal")
	if raw == "" {
		raw = get("CreateDate")
	}

	c.Time, err = ParseExifTime(raw, get("SubSecTimeOriginal"))

	return c, err
}

// Tag writes tags into a staged copy of src and publishes it at dst.
func (p *ExiftoolPool) Tag(ctx context.Context, src, dst string, tags Tags) error {
	et, err := p.acquire(ctx)
	if err != nil {
		return geoerr.MetadataWrite(src, err)
	}
	defer p.release(et)

	err = WriteAtomic(src, dst, func(tmp string) error {
		md := exiftool.EmptyFileMetadata()
		md.File = tmp

		for _, f := range tags {
			switch v := f.Value.(type) {
			case float64:
				md.SetFloat(f.Name, v)
			case string:
				md.SetString(f.Name, v)
			default:
				md.SetString(f.Name, fmt.Sprint(v))
			}
		}

		batch := []exiftool.FileMetadata{md}
		et.WriteMetadata(batch)

		return batch[0].Err
	})
	if err != nil {
		return geoerr.MetadataWrite(src, err)
	}

	return nil
}

// Close stops every exiftool process. It is safe to call more than once.
func (p *ExiftoolPool) Close() error {
	var errs []error

	p.once.Do(func() {
		for _, et := range p.all {
			if err := et.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}
