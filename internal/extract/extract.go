// Package extract cuts the crop window out of a mosaic and resamples it to the
// output size.
package extract

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/kiesman99/orthocrop/internal/mosaic"
	"github.com/kiesman99/orthocrop/internal/selector"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

// CropOutOfBoundsError reports pixel bounds that do not fit in the mosaic. It
// means the selection frame and the mosaic disagree.
type CropOutOfBoundsError struct {
	Pixels        image.Rectangle
	Width, Height int
}

func (e *CropOutOfBoundsError) Error() string {
	return fmt.Sprintf("crop %v outside mosaic of %dx%d pixels", e.Pixels, e.Width, e.Height)
}

// PixelWindow maps a crop window to the half-open pixel rectangle it covers in a
// mosaic with the given frame. Row 0 is frame.MaxY.
func PixelWindow(w selector.Window, frame tile.Bounds, resolution int) image.Rectangle {
	return image.Rect(
		(w.MinX-frame.MinX)*resolution,
		(frame.MaxY-w.MaxY)*resolution,
		(w.MaxX-frame.MinX)*resolution,
		(frame.MaxY-w.MinY)*resolution,
	)
}

// WindowFromPixels is the inverse of PixelWindow. It is exact whenever the
// rectangle came from PixelWindow with the same frame and resolution.
func WindowFromPixels(r image.Rectangle, frame tile.Bounds, resolution int) selector.Window {
	return selector.Window{Bounds: tile.Bounds{
		MinX: frame.MinX + r.Min.X/resolution,
		MaxX: frame.MinX + r.Max.X/resolution,
		MaxY: frame.MaxY - r.Min.Y/resolution,
		MinY: frame.MaxY - r.Max.Y/resolution,
	}}
}

// Extract crops w out of m and scales it to size x size pixels using bilinear
// interpolation.
func Extract(m *mosaic.Mosaic, w selector.Window, size int) (*tile.ImageData, error) {
	if size <= 0 {
		return nil, fmt.Errorf("output size must be positive, got %d", size)
	}
	r := PixelWindow(w, m.Frame, m.Resolution)
	if r.Empty() || !r.In(m.Image.Bounds()) {
		return nil, &CropOutOfBoundsError{Pixels: r, Width: m.Image.Width, Height: m.Image.Height}
	}

	src := m.Image.ToRGBA(r)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return tile.FromImage(dst), nil
}
