// Package mosaic decodes the tiles of a selection and places them on one
// north-up canvas.
package mosaic

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/selector"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// DecodeError wraps the failure to decode one tile of a selection
type DecodeError struct {
	Tile tile.Tile
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode tile %s (%s): %v", e.Tile, e.Tile.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InconsistentTileShapeError reports a decoded tile whose size does not match
// the grid
type InconsistentTileShapeError struct {
	Tile           tile.Tile
	Width, Height  int
	ExpectedPixels int
}

func (e *InconsistentTileShapeError) Error() string {
	return fmt.Sprintf("tile %s decoded to %dx%d, expected %dx%d",
		e.Tile, e.Width, e.Height, e.ExpectedPixels, e.ExpectedPixels)
}

// Mosaic is the raster of a selection. Row 0 is the northernmost row of the
// selection frame, column 0 its westernmost column.
type Mosaic struct {
	Image      *tile.ImageData
	Frame      tile.Bounds
	Resolution int
}

// Assembler decodes and stitches selections
type Assembler struct {
	decoder tile.Decoder
	workers int
	log     *zap.Logger
}

// Option configures an Assembler
type Option func(*Assembler)

// Workers bounds the number of concurrent decodes, defaults to runtime.NumCPU()
func Workers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// Logger sets the logger used for per tile debug output
func Logger(log *zap.Logger) Option {
	return func(a *Assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates an assembler using decoder for every tile
func New(decoder tile.Decoder, opts ...Option) *Assembler {
	a := &Assembler{
		decoder: decoder,
		workers: runtime.NumCPU(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble decodes every tile of sel and returns the mosaic. A single tile is
// returned as decoded. Any failure aborts the remaining decodes and no partial
// mosaic is returned.
func (a *Assembler) Assemble(ctx context.Context, sel *selector.Selection) (*Mosaic, error) {
	rasters, err := a.DecodeAll(ctx, sel.Tiles)
	if err != nil {
		return nil, err
	}
	expected := sel.Grid.TilePixels()
	for i, r := range rasters {
		if r.Width != expected || r.Height != expected || r.Depth != 3 {
			return nil, &InconsistentTileShapeError{Tile: sel.Tiles[i], Width: r.Width, Height: r.Height, ExpectedPixels: expected}
		}
	}

	m := &Mosaic{Frame: sel.Frame, Resolution: sel.Grid.Resolution}
	if len(rasters) == 1 {
		m.Image = rasters[0]
		return m, nil
	}

	cols := ranks(sel.Tiles, func(t tile.Tile) int { return t.XOrigin }, false)
	rows := ranks(sel.Tiles, func(t tile.Tile) int { return t.YOrigin }, true)
	m.Image = tile.NewImageData(len(cols)*expected, len(rows)*expected)
	for i, t := range sel.Tiles {
		place(m.Image, rasters[i], cols[t.XOrigin]*expected, rows[t.YOrigin]*expected)
	}
	return m, nil
}

// DecodeAll decodes tiles on the worker pool. The result at index i always
// belongs to tiles[i], whatever order the decodes complete in.
func (a *Assembler) DecodeAll(ctx context.Context, tiles []tile.Tile) ([]*tile.ImageData, error) {
	rasters := make([]*tile.ImageData, len(tiles))
	if len(tiles) == 1 {
		img, err := a.decode(ctx, tiles[0])
		if err != nil {
			return nil, err
		}
		rasters[0] = img
		return rasters, nil
	}

	p := pool.New().
		WithMaxGoroutines(min(a.workers, len(tiles))).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, t := range tiles {
		p.Go(func(ctx context.Context) error {
			img, err := a.decode(ctx, t)
			if err != nil {
				return err
			}
			rasters[i] = img
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return rasters, nil
}

func (a *Assembler) decode(ctx context.Context, t tile.Tile) (*tile.ImageData, error) {
	a.log.Debug("decoding tile", zap.Stringer("tile", t), zap.String("path", t.Path))
	img, err := a.decoder.Decode(ctx, t.Path)
	if err != nil {
		return nil, &DecodeError{Tile: t, Err: err}
	}
	return img, nil
}

// ranks maps every distinct origin to its position along the axis
func ranks(tiles []tile.Tile, origin func(tile.Tile) int, descending bool) map[int]int {
	var values []int
	seen := make(map[int]bool, 2)
	for _, t := range tiles {
		v := origin(t)
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Ints(values)
	if descending {
		sort.Sort(sort.Reverse(sort.IntSlice(values)))
	}
	out := make(map[int]int, len(values))
	for i, v := range values {
		out[v] = i
	}
	return out
}

// place copies src into dst with its top-left pixel at (x, y)
func place(dst, src *tile.ImageData, x, y int) {
	stride := src.Stride()
	for row := 0; row < src.Height; row++ {
		d := (y+row)*dst.Stride() + x*dst.Depth
		copy(dst.Buf[d:d+stride], src.Buf[row*stride:(row+1)*stride])
	}
}
