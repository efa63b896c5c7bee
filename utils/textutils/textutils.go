// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils normalizes user supplied text before it lands in photo
// metadata or file names.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters that do not decompose under NFD
var foldReplacer = strings.NewReplacer(
	"ß", "ss", "Æ", "AE", "æ", "ae", "Ø", "O", "ø", "o", "Œ", "OE", "œ", "oe",
	"Ł", "L", "ł", "l", "Đ", "D", "đ", "d", "Þ", "Th", "þ", "th",
)

func stripMarks(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		s,
	)

	return s
}

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	return stripMarks(strings.TrimSpace(strings.ToLower(s)))
}

// ASCIIFolding removes accents and maps the remaining non ASCII runes to
// '?', keeping case. EXIF ASCII fields (Artist, Copyright) go through it.
func ASCIIFolding(s string) string {
	s = stripMarks(foldReplacer.Replace(s))

	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}

		return r
	}, s)
}

// Slug turns a relative path into a file-name safe identifier:
// "Dive 1/Ñandú.JPG" becomes "dive_1_nandu".
func Slug(s string) string {
	if i := strings.LastIndexByte(s, '.'); i > 0 && !strings.ContainsAny(s[i:], `/\`) {
		s = s[:i]
	}

	s = LowerASCIIFolding(foldReplacer.Replace(s))

	var sb strings.Builder

	underscore := false

	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			sb.WriteRune(r)

			underscore = false
		} else if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')

			underscore = true
		}
	}

	return strings.TrimSuffix(sb.String(), "_")
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
