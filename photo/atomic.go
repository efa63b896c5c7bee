// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package photo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic publishes a tagged copy of src at dst. The copy is staged in a
// hidden temporary file beside dst, handed to write, synced and renamed over
// dst. On any failure dst is left untouched and the temporary file removed.
// src and dst may be the same path.
func WriteAtomic(src, dst string, write func(tmp string) error) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	ext := filepath.Ext(dst)
	stem := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(dst), ext), "*", "_")

	tmp, err := os.CreateTemp(dir, "."+stem+"-*"+ext)
	if err != nil {
		return fmt.Errorf("staging %s: %w", dst, err)
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
	}()

	if err = copyInto(tmp, src); err != nil {
		return err
	}

	if err = os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}

	if err = write(tmpName); err != nil {
		return err
	}

	if err = syncFile(tmpName); err != nil {
		return err
	}

	if err = os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}

	return os.Rename(tmpName, dst)
}

func copyInto(tmp *os.File, src string) (err error) {
	defer func() {
		if cerr := tmp.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}

	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	return errors.Join(f.Sync(), f.Close())
}
