// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// Enumerate lists the photos under importDir whose extension is one of
// extensions, case-insensitively. Paths are relative, slash separated and
// sorted. Hidden files are ignored, and so is exportDir when it is nested
// inside importDir.
func Enumerate(importDir, exportDir string, extensions []string) ([]string, error) {
	root, err := filepath.Abs(importDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", importDir, err)
	}

	skip := ""
	if exportDir != "" {
		if skip, err = filepath.Abs(exportDir); err != nil {
			return nil, fmt.Errorf("resolving %s: %w", exportDir, err)
		}

		if skip == root {
			skip = ""
		}
	}

	var rels []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == skip {
				return fs.SkipDir
			}

			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}

		if !slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rels = append(rels, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", importDir, err)
	}

	slices.Sort(rels)

	return rels, nil
}
