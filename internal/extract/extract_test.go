package extract

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/orthocrop/internal/mosaic"
	"github.com/kiesman99/orthocrop/internal/selector"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

func TestPixelWindow(t *testing.T) {
	frame := tile.Bounds{MinX: 462000, MinY: 5766000, MaxX: 464000, MaxY: 5768000}
	w := selector.NewWindow(462999, 5767000, 100)

	r := PixelWindow(w, frame, 10)
	assert.Equal(t, image.Rect(8990, 9000, 10990, 11000), r)
	assert.Equal(t, 2000, r.Dx())
	assert.Equal(t, 2000, r.Dy())
}

func TestPixelWindowRoundTrip(t *testing.T) {
	frames := []tile.Bounds{
		{MinX: 462000, MinY: 5766000, MaxX: 463000, MaxY: 5767000},
		{MinX: 462000, MinY: 5766000, MaxX: 464000, MaxY: 5768000},
		{MinX: -2000, MinY: -1000, MaxX: 0, MaxY: 1000},
	}
	for _, frame := range frames {
		for _, res := range []int{1, 2, 10} {
			for r := 1; r <= 400; r += 37 {
				x := frame.MinX + r + (frame.Width()-2*r)/3
				y := frame.MinY + r + (frame.Height()-2*r)/2
				w := selector.NewWindow(x, y, r)
				got := WindowFromPixels(PixelWindow(w, frame, res), frame, res)
				require.Equal(t, w, got, "frame %v res %d radius %d", frame, res, r)
			}
		}
	}
}

// gradient builds a mosaic whose pixel (x, y) has colour (x, y, 0) scaled to bytes
func gradient(width, height int) *tile.ImageData {
	img := tile.NewImageData(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*img.Stride() + x*3
			img.Buf[i] = byte(x)
			img.Buf[i+1] = byte(y)
		}
	}
	return img
}

func TestExtract(t *testing.T) {
	// one tile of extent 20 at resolution 2 with its lower-left corner at (100, 200)
	m := &mosaic.Mosaic{
		Image:      gradient(40, 40),
		Frame:      tile.Bounds{MinX: 100, MinY: 200, MaxX: 120, MaxY: 220},
		Resolution: 2,
	}
	w := selector.NewWindow(110, 210, 4)

	out, err := Extract(m, w, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 16, out.Height)
	assert.Equal(t, 3, out.Depth)
	assert.Len(t, out.Buf, 16*16*3)

	// window pixels span x [12, 28) and y [12, 28); scaling 16 -> 16 is identity
	assert.Equal(t, byte(12), out.Buf[0])
	assert.Equal(t, byte(12), out.Buf[1])
	last := len(out.Buf) - 3
	assert.Equal(t, byte(27), out.Buf[last])
	assert.Equal(t, byte(27), out.Buf[last+1])

	again, err := Extract(m, w, 16)
	require.NoError(t, err)
	assert.Equal(t, out.Buf, again.Buf, "resampling must be deterministic")
}

func TestExtractResize(t *testing.T) {
	m := &mosaic.Mosaic{
		Image:      gradient(40, 40),
		Frame:      tile.Bounds{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20},
		Resolution: 2,
	}
	out, err := Extract(m, selector.NewWindow(10, 10, 5), 256)
	require.NoError(t, err)
	assert.Equal(t, 256, out.Width)
	assert.Equal(t, 256, out.Height)
	assert.Len(t, out.Buf, 256*256*3)
}

func TestExtractOutOfBounds(t *testing.T) {
	m := &mosaic.Mosaic{
		Image:      gradient(40, 40),
		Frame:      tile.Bounds{MinX: 100, MinY: 200, MaxX: 120, MaxY: 220},
		Resolution: 2,
	}
	for _, w := range []selector.Window{
		selector.NewWindow(102, 210, 4),
		selector.NewWindow(110, 218, 4),
		selector.NewWindow(90, 190, 4),
	} {
		_, err := Extract(m, w, 16)
		var oob *CropOutOfBoundsError
		require.True(t, errors.As(err, &oob), "window %v", w)
		assert.Equal(t, 40, oob.Width)
	}
}
