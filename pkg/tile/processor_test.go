package tile

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromImage(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 3))
	rgba.SetRGBA(1, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	gray := image.NewGray(image.Rect(0, 0, 4, 3))
	gray.SetGray(1, 2, color.Gray{Y: 77})

	// sub-images start at a non-zero origin
	big := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	big.SetNRGBA(5, 6, color.NRGBA{R: 1, G: 2, B: 3, A: 0})
	sub := big.SubImage(image.Rect(4, 4, 8, 7))

	tests := []struct {
		name string
		img  image.Image
		want [3]byte
	}{
		{"rgba", rgba, [3]byte{10, 20, 30}},
		{"gray", gray, [3]byte{77, 77, 77}},
		{"nrgba sub-image", sub, [3]byte{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FromImage(tt.img)
			require.Equal(t, 4, out.Width)
			require.Equal(t, 3, out.Height)
			require.Equal(t, 3, out.Depth)
			require.Len(t, out.Buf, 4*3*3)

			idx := 2*out.Stride() + 1*3
			assert.Equal(t, tt.want[:], out.Buf[idx:idx+3])
			assert.Equal(t, []byte{0, 0, 0}, out.Buf[0:3])
		})
	}
}

func TestFromImageYCbCr(t *testing.T) {
	// JPEG tiles decode to YCbCr
	img := image.NewYCbCr(image.Rect(0, 0, 6, 4), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 180
	}
	for i := range img.Cb {
		img.Cb[i] = 90
		img.Cr[i] = 160
	}
	r, g, b := color.YCbCrToRGB(180, 90, 160)

	out := FromImage(img)
	require.Equal(t, 6, out.Width)
	require.Equal(t, 4, out.Height)
	for i := 0; i < len(out.Buf); i += 3 {
		assert.InDelta(t, r, out.Buf[i], 1)
		assert.InDelta(t, g, out.Buf[i+1], 1)
		assert.InDelta(t, b, out.Buf[i+2], 1)
	}
}

func TestToRGBA(t *testing.T) {
	img := NewImageData(3, 2)
	copy(img.Buf[img.Stride()+2*3:], []byte{9, 8, 7})

	out := img.ToRGBA(image.Rect(1, 1, 3, 2))
	assert.Equal(t, image.Rect(0, 0, 2, 1), out.Bounds())
	assert.Equal(t, color.RGBA{R: 9, G: 8, B: 7, A: 255}, out.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 0))
}

func TestEncode(t *testing.T) {
	img := NewImageData(5, 4)
	for i := range img.Buf {
		img.Buf[i] = 200
	}

	t.Run("png", func(t *testing.T) {
		data, err := EncodeBytes(img, FormatPNG)
		require.NoError(t, err)
		decoded, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 5, 4), decoded.Bounds())
		r, g, b, _ := decoded.At(2, 2).RGBA()
		assert.Equal(t, []uint32{200, 200, 200}, []uint32{r >> 8, g >> 8, b >> 8})
	})

	t.Run("jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, img, FormatJPEG))
		decoded, err := jpeg.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 5, 4), decoded.Bounds())
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := EncodeBytes(img, 42)
		assert.Error(t, err)
	})
}

func TestWorldFile(t *testing.T) {
	lines := strings.Fields(string(WorldFile(0.5, 0.5, 100, 200)))
	require.Len(t, lines, 6)

	want := []float64{0.5, 0, 0, -0.5, 100.25, 199.75}
	for i, l := range lines {
		v, err := strconv.ParseFloat(l, 64)
		require.NoError(t, err)
		assert.InDelta(t, want[i], v, 1e-9, "line %d", i+1)
	}

	assert.Equal(t, ".pgw", WorldFileExt(FormatPNG))
	assert.Equal(t, ".jgw", WorldFileExt(FormatJPEG))
}

func TestTileGeometry(t *testing.T) {
	tl := Tile{XOrigin: 462000, YOrigin: 5766000, Extent: 1000}
	assert.Equal(t, 462, tl.XIndex())
	assert.Equal(t, 5766, tl.YIndex())
	assert.Equal(t, Bounds{MinX: 462000, MinY: 5766000, MaxX: 462999, MaxY: 5766999}, tl.Bounds())

	b := Bounds{MinX: 1, MinY: 2, MaxX: 11, MaxY: 7}
	assert.Equal(t, 10, b.Width())
	assert.Equal(t, 5, b.Height())

	assert.NoError(t, DefaultGrid().Validate())
	assert.Equal(t, 10000, DefaultGrid().TilePixels())
	assert.Error(t, Grid{Extent: 0, Resolution: 10}.Validate())
	assert.Error(t, Grid{Extent: 10, Resolution: -1}.Validate())
}
