// Package selector determines the crop window of a request and the tiles of a
// catalog needed to cover it.
package selector

import (
	"fmt"

	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Axis names used in OutOfRangeError
const (
	AxisX = "x"
	AxisY = "y"
)

// InvalidRadiusError is returned for a radius that is not strictly positive or
// whose window could span more than two tiles per axis
type InvalidRadiusError struct {
	Radius int
	Max    int
}

func (e *InvalidRadiusError) Error() string {
	if e.Radius <= 0 {
		return fmt.Sprintf("radius must be positive, got %d", e.Radius)
	}
	return fmt.Sprintf("radius %d exceeds maximum %d", e.Radius, e.Max)
}

// MaxRadius is the largest radius whose window spans at most 2x2 tiles.
func MaxRadius(grid tile.Grid) int {
	return grid.Extent / 2
}

// OutOfRangeError reports a crop window edge outside the catalog's coverage
type OutOfRangeError struct {
	Axis         string
	Requested    int
	AvailableMin int
	AvailableMax int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s value %d outside available range [%d, %d]",
		e.Axis, e.Requested, e.AvailableMin, e.AvailableMax)
}

// MissingTileError reports a tile needed to cover the window that is absent
// from the directory
type MissingTileError struct {
	XOrigin int
	YOrigin int
}

func (e *MissingTileError) Error() string {
	return fmt.Sprintf("missing tile at (%d, %d)", e.XOrigin, e.YOrigin)
}

// Window is the square crop window x ± r, y ± r in geographic units
type Window struct {
	tile.Bounds
}

// NewWindow returns the crop window of a request
func NewWindow(x, y, radius int) Window {
	return Window{tile.Bounds{
		MinX: x - radius,
		MinY: y - radius,
		MaxX: x + radius,
		MaxY: y + radius,
	}}
}

// Selection is the set of tiles covering a window together with their
// bounding box, the coordinate frame of the mosaic. Tiles are sorted by
// (XOrigin, YOrigin).
type Selection struct {
	Tiles []tile.Tile
	// Frame maxima are the outer tile edges (origin + extent), one unit past
	// the last covered unit. A window whose top edge lies on a tile boundary
	// then maps to pixel row 0 of the mosaic.
	Frame tile.Bounds
	Grid  tile.Grid
}

// Columns is the number of distinct tile x origins, 1 or 2.
func (s *Selection) Columns() int {
	return len(distinct(s.Tiles, func(t tile.Tile) int { return t.XOrigin }))
}

// Rows is the number of distinct tile y origins, 1 or 2.
func (s *Selection) Rows() int {
	return len(distinct(s.Tiles, func(t tile.Tile) int { return t.YOrigin }))
}

// MosaicSize is the pixel size of the mosaic assembled from the selection
func (s *Selection) MosaicSize() (width, height int) {
	return s.Columns() * s.Grid.TilePixels(), s.Rows() * s.Grid.TilePixels()
}

// Select computes the crop window around (x, y) and the tiles covering it.
// Nothing is decoded; a rejected request never touches tile data.
func Select(cat *catalog.Catalog, x, y, radius int) (*Selection, Window, error) {
	if radius <= 0 || radius > MaxRadius(cat.Grid) {
		return nil, Window{}, &InvalidRadiusError{Radius: radius, Max: MaxRadius(cat.Grid)}
	}
	w := NewWindow(x, y, radius)
	if err := checkRange(cat, w); err != nil {
		return nil, w, err
	}

	extent := cat.Grid.Extent
	xs := indices(w.MinX, w.MaxX, extent)
	ys := indices(w.MinY, w.MaxY, extent)

	sel := &Selection{Grid: cat.Grid}
	for _, xi := range xs {
		for _, yi := range ys {
			t, ok := cat.Lookup(xi, yi)
			if !ok {
				return nil, w, &MissingTileError{XOrigin: xi * extent, YOrigin: yi * extent}
			}
			sel.Tiles = append(sel.Tiles, t)
		}
	}

	first := sel.Tiles[0]
	sel.Frame = tile.Bounds{MinX: first.XOrigin, MinY: first.YOrigin, MaxX: first.XOrigin, MaxY: first.YOrigin}
	for _, t := range sel.Tiles[1:] {
		sel.Frame.MinX = min(sel.Frame.MinX, t.XOrigin)
		sel.Frame.MinY = min(sel.Frame.MinY, t.YOrigin)
		sel.Frame.MaxX = max(sel.Frame.MaxX, t.XOrigin)
		sel.Frame.MaxY = max(sel.Frame.MaxY, t.YOrigin)
	}
	sel.Frame.MaxX += extent
	sel.Frame.MaxY += extent
	return sel, w, nil
}

func checkRange(cat *catalog.Catalog, w Window) error {
	b := cat.Bounds()
	switch {
	case w.MinX < b.MinX:
		return &OutOfRangeError{Axis: AxisX, Requested: w.MinX, AvailableMin: b.MinX, AvailableMax: b.MaxX}
	case w.MaxX > b.MaxX:
		return &OutOfRangeError{Axis: AxisX, Requested: w.MaxX, AvailableMin: b.MinX, AvailableMax: b.MaxX}
	case w.MinY < b.MinY:
		return &OutOfRangeError{Axis: AxisY, Requested: w.MinY, AvailableMin: b.MinY, AvailableMax: b.MaxY}
	case w.MaxY > b.MaxY:
		return &OutOfRangeError{Axis: AxisY, Requested: w.MaxY, AvailableMin: b.MinY, AvailableMax: b.MaxY}
	}
	return nil
}

// indices returns the grid indices covered by [lo, hi). An upper edge that lies
// exactly on a tile boundary contributes no pixels to the next tile.
func indices(lo, hi, extent int) []int {
	first := floorDiv(lo, extent)
	last := floorDiv(hi-1, extent)
	if last <= first {
		return []int{first}
	}
	return []int{first, last}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func distinct(tiles []tile.Tile, f func(tile.Tile) int) map[int]struct{} {
	out := make(map[int]struct{}, 2)
	for _, t := range tiles {
		out[f(t)] = struct{}{}
	}
	return out
}
