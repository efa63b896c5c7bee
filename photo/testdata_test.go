// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package photo

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // ASCII payload, nil for the LONG pointer
	value uint32
}

func ascii(s string) []byte { return append([]byte(s), 0) }

// writeIFD lays out entries at offset and returns the encoded IFD followed by
// its out-of-line data.
func writeIFD(offset uint32, entries []ifdEntry) []byte {
	le := binary.LittleEndian
	head := 2 + 12*len(entries) + 4
	dataOff := offset + uint32(head)

	var ifd, data bytes.Buffer

	_ = binary.Write(&ifd, le, uint16(len(entries)))

	for _, e := range entries {
		_ = binary.Write(&ifd, le, e.tag)
		_ = binary.Write(&ifd, le, e.typ)
		_ = binary.Write(&ifd, le, e.count)

		switch {
		case e.data == nil:
			_ = binary.Write(&ifd, le, e.value)
		case len(e.data) <= 4:
			v := make([]byte, 4)
			copy(v, e.data)
			ifd.Write(v)
		default:
			_ = binary.Write(&ifd, le, dataOff+uint32(data.Len()))
			data.Write(e.data)
		}
	}

	_ = binary.Write(&ifd, le, uint32(0))

	return append(ifd.Bytes(), data.Bytes()...)
}

// exifJPEG builds a small JPEG whose EXIF block carries make, model and
// DateTimeOriginal (skipped when empty).
func exifJPEG(t *testing.T, mk, model, dateTimeOriginal string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := range 16 {
		for y := range 16 {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}

	var raw bytes.Buffer
	require.NoError(t, jpeg.Encode(&raw, img, nil))

	ifd0 := []ifdEntry{
		{tag: 0x010F, typ: 2, count: uint32(len(mk) + 1), data: ascii(mk)},
		{tag: 0x0110, typ: 2, count: uint32(len(model) + 1), data: ascii(model)},
		{tag: 0x8769, typ: 4, count: 1},
	}

	// the sub IFD offset depends on the size of IFD0
	ifd0Size := len(writeIFD(8, ifd0))
	exifOff := uint32(8 + ifd0Size)
	ifd0[2].value = exifOff

	var exifEntries []ifdEntry
	if dateTimeOriginal != "" {
		exifEntries = append(exifEntries, ifdEntry{tag: 0x9003, typ: 2, count: uint32(len(dateTimeOriginal) + 1), data: ascii(dateTimeOriginal)})
	}

	var tiff bytes.Buffer
	tiff.WriteString("II")
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(42))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	tiff.Write(writeIFD(8, ifd0))
	tiff.Write(writeIFD(exifOff, exifEntries))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(raw.Bytes()[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(raw.Bytes()[2:])

	return out.Bytes()
}

func writePhoto(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}
