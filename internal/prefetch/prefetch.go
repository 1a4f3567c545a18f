// Package prefetch decodes every tile of a catalog, e.g. to warm the page cache
// or to find corrupt tiles before serving a directory.
package prefetch

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Report is the outcome of decoding one tile
type Report struct {
	Tile     tile.Tile
	Width    int
	Height   int
	Duration time.Duration
	Err      error
}

// Options controls a prefetch run
type Options struct {
	// Limit stops after the first Limit tiles of the catalog, 0 means all
	Limit   int
	Workers int
	// Progress receives a progress bar, nil disables it
	Progress io.Writer
	Log      *zap.Logger
}

// Run decodes the tiles of cat with decoder. A failing tile does not stop the
// run; its error is recorded in its report. The returned reports follow the
// catalog order whatever order the decodes complete in. Run returns ctx.Err()
// if the context ends before all tiles were decoded.
func Run(ctx context.Context, cat *catalog.Catalog, decoder tile.Decoder, opts Options) ([]Report, error) {
	tiles := cat.Tiles
	if opts.Limit > 0 && opts.Limit < len(tiles) {
		tiles = tiles[:opts.Limit]
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	bar := newBar(len(tiles), opts.Progress)
	reports := make([]Report, len(tiles))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, t := range tiles {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			img, err := decoder.Decode(ctx, t.Path)
			r := Report{Tile: t, Duration: time.Since(start), Err: err}
			if err == nil {
				r.Width, r.Height = img.Width, img.Height
			} else {
				log.Warn("tile decode failed", zap.Stringer("tile", t), zap.String("path", t.Path), zap.Error(err))
			}
			reports[i] = r
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	err := p.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		// only the context checks above return errors
		return nil, ctx.Err()
	}
	return reports, nil
}

// Failed returns the reports that carry an error
func Failed(reports []Report) []Report {
	var out []Report
	for _, r := range reports {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

func newBar(total int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetDescription("decoding tiles"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}
