// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// Cell returns the H3 cell containing p at the given resolution.
func Cell(p Point, res int) (int64, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("error converting to h3 cell at res %d: %w", res, err)
	}

	return int64(cell), nil
}

// Cells returns the H3 cells containing p for every resolution in
// [minRes, maxRes], indexed from minRes.
func Cells(p Point, minRes, maxRes int) ([]int64, error) {
	if minRes > maxRes {
		return nil, fmt.Errorf("invalid h3 resolution range %d..%d", minRes, maxRes)
	}

	cells := make([]int64, 0, maxRes-minRes+1)

	for res := minRes; res <= maxRes; res++ {
		cell, err := Cell(p, res)
		if err != nil {
			return nil, err
		}

		cells = append(cells, cell)
	}

	return cells, nil
}

// CellString renders a cell id in the canonical hexadecimal form.
func CellString(cell int64) string {
	return h3.Cell(cell).String()
}
