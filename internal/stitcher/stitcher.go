// Package stitcher answers crop requests: it selects the tiles around a point,
// stitches them and cuts out the resampled window.
package stitcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-spatial/geom"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/internal/decode"
	"github.com/kiesman99/orthocrop/internal/extract"
	"github.com/kiesman99/orthocrop/internal/mosaic"
	"github.com/kiesman99/orthocrop/internal/selector"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Request is a crop centred on (X, Y) with half-width Radius, read from the
// tile directory Dir
type Request struct {
	X, Y   int
	Radius int
	Dir    string
}

// Timing holds the duration of each phase of a crop
type Timing struct {
	Select   time.Duration
	Assemble time.Duration
	Extract  time.Duration
}

// Total is the sum of all phases
func (t Timing) Total() time.Duration {
	return t.Select + t.Assemble + t.Extract
}

// Result contains the crop and the data needed to georeference it
type Result struct {
	Image     *tile.ImageData
	Window    selector.Window
	Selection *selector.Selection
	Timing    Timing
}

// PixelSize is the geographic size of one output pixel.
func (r *Result) PixelSize() float64 {
	return float64(r.Window.Width()) / float64(r.Image.Width)
}

// Extent is the crop window as (minx, miny, maxx, maxy)
func (r *Result) Extent() geom.Extent {
	return r.Window.ToGeomExtent()
}

// WorldFile returns world file data for the crop
func (r *Result) WorldFile() []byte {
	px := r.PixelSize()
	return tile.WorldFile(px, px, float64(r.Window.MinX), float64(r.Window.MaxY))
}

// Encode writes the crop as PNG or JPEG
func (r *Result) Encode(w io.Writer, format int) error {
	return tile.Encode(w, r.Image, format)
}

// Stitcher performs crop operations
type Stitcher struct {
	catalogs   *catalog.Cache
	assembler  *mosaic.Assembler
	outputSize int
	log        *zap.Logger
}

// Option configures a Stitcher
type Option func(*Stitcher)

// OutputSize sets the side length of the returned crop, defaults to tile.DefaultOutputSize
func OutputSize(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.outputSize = n
		}
	}
}

// Logger sets the logger
func Logger(log *zap.Logger) Option {
	return func(s *Stitcher) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a stitcher reading catalogs from catalogs and tiles through assembler
func New(catalogs *catalog.Cache, assembler *mosaic.Assembler, opts ...Option) *Stitcher {
	s := &Stitcher{
		catalogs:   catalogs,
		assembler:  assembler,
		outputSize: tile.DefaultOutputSize,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the (cached) catalog of dir
func (s *Stitcher) Catalog(dir string) (*catalog.Catalog, error) {
	return s.catalogs.Get(dir)
}

// GetCrop performs the crop. Range and radius errors are detected before any
// tile is decoded.
func (s *Stitcher) GetCrop(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	cat, err := s.catalogs.Get(req.Dir)
	if err != nil {
		return nil, err
	}
	sel, w, err := selector.Select(cat, req.X, req.Y, req.Radius)
	if err != nil {
		return nil, err
	}
	res := &Result{Window: w, Selection: sel}
	res.Timing.Select = time.Since(start)

	start = time.Now()
	m, err := s.assembler.Assemble(ctx, sel)
	if err != nil {
		return nil, err
	}
	res.Timing.Assemble = time.Since(start)

	start = time.Now()
	res.Image, err = extract.Extract(m, w, s.outputSize)
	if err != nil {
		return nil, err
	}
	res.Timing.Extract = time.Since(start)

	s.log.Debug("crop done",
		zap.String("dir", req.Dir),
		zap.Int("x", req.X),
		zap.Int("y", req.Y),
		zap.Int("radius", req.Radius),
		zap.Int("tiles", len(sel.Tiles)),
		zap.Duration("select", res.Timing.Select),
		zap.Duration("assemble", res.Timing.Assemble),
		zap.Duration("extract", res.Timing.Extract),
	)
	return res, nil
}

// GetCrop returns the DefaultOutputSize crop around (x, y) from the tiles in
// dataDir, using the default grid and the standard library decoders.
func GetCrop(ctx context.Context, x, y, radius int, dataDir string) (*tile.ImageData, error) {
	return getCrop(ctx, afero.NewOsFs(), tile.DefaultGrid(), x, y, radius, dataDir)
}

func getCrop(ctx context.Context, fs afero.Fs, grid tile.Grid, x, y, radius int, dataDir string) (*tile.ImageData, error) {
	cache, err := catalog.NewCache(fs, grid, 1, nil)
	if err != nil {
		return nil, err
	}
	res, err := New(cache, mosaic.New(decode.NewStd(fs))).GetCrop(ctx, Request{X: x, Y: y, Radius: radius, Dir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("crop (%d, %d) r=%d: %w", x, y, radius, err)
	}
	return res.Image, nil
}
