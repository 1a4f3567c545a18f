package tile

import (
	"context"
	"fmt"

	"github.com/go-spatial/geom"
)

// Grid constants shared by every tile in a catalog
const (
	// DefaultExtent is the side length of a tile in geographic units (metres).
	DefaultExtent = 1000
	// DefaultResolution is the number of pixels per geographic unit.
	DefaultResolution = 10
	// DefaultOutputSize is the side length of the canonical output image in pixels.
	DefaultOutputSize = 256
)

// Output format constants
const (
	FormatPNG = iota
	FormatJPEG
)

// Grid describes the fixed tiling scheme of a dataset
type Grid struct {
	Extent     int
	Resolution int
}

// DefaultGrid returns the 1km / 10px-per-metre grid of the orthophoto datasets
func DefaultGrid() Grid {
	return Grid{Extent: DefaultExtent, Resolution: DefaultResolution}
}

// TilePixels is the side length of a decoded tile raster.
func (g Grid) TilePixels() int {
	return g.Extent * g.Resolution
}

// Validate checks that the grid can map geographic units to pixels
func (g Grid) Validate() error {
	if g.Extent <= 0 {
		return fmt.Errorf("grid extent must be positive, got %d", g.Extent)
	}
	if g.Resolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %d", g.Resolution)
	}
	return nil
}

// Tile is one raster file covering Extent x Extent units starting at its lower-left origin
type Tile struct {
	XOrigin int
	YOrigin int
	Extent  int
	Path    string
}

// XIndex is the tile's column in the grid (the km token of its name).
func (t Tile) XIndex() int { return t.XOrigin / t.Extent }

// YIndex is the tile's row in the grid.
func (t Tile) YIndex() int { return t.YOrigin / t.Extent }

// Bounds returns the inclusive range of geographic units covered by the tile.
func (t Tile) Bounds() Bounds {
	return Bounds{
		MinX: t.XOrigin,
		MinY: t.YOrigin,
		MaxX: t.XOrigin + t.Extent - 1,
		MaxY: t.YOrigin + t.Extent - 1,
	}
}

func (t Tile) String() string {
	return fmt.Sprintf("(%d,%d)", t.XOrigin, t.YOrigin)
}

// Bounds is an axis aligned rectangle in geographic units. Catalog ranges have
// inclusive maxima, selection frames and crop windows carry their outer edges.
type Bounds struct {
	MinX, MinY, MaxX, MaxY int
}

// Width is the distance between MinX and MaxX
func (b Bounds) Width() int { return b.MaxX - b.MinX }

// Height is the distance between MinY and MaxY
func (b Bounds) Height() int { return b.MaxY - b.MinY }

// ToGeomExtent converts the bounds to a go-spatial extent (minx, miny, maxx, maxy).
func (b Bounds) ToGeomExtent() geom.Extent {
	return geom.Extent{float64(b.MinX), float64(b.MinY), float64(b.MaxX), float64(b.MaxY)}
}

// ImageData holds a decoded raster
type ImageData struct {
	Buf    []byte
	Width  int
	Height int
	Depth  int // channels, always 3 (RGB) once a Decoder returned it
}

// NewImageData allocates a zeroed RGB raster
func NewImageData(width, height int) *ImageData {
	return &ImageData{
		Buf:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
		Depth:  3,
	}
}

// Stride is the number of bytes per row.
func (img *ImageData) Stride() int {
	return img.Width * img.Depth
}

// Decoder turns a tile path into an RGB raster. Implementations must be safe for
// concurrent use and return a buffer owned exclusively by the caller.
type Decoder interface {
	Decode(ctx context.Context, path string) (*ImageData, error)
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(ctx context.Context, path string) (*ImageData, error)

// Decode calls f(ctx, path).
func (f DecoderFunc) Decode(ctx context.Context, path string) (*ImageData, error) {
	return f(ctx, path)
}
