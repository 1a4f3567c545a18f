package decode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestStdDecode(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(10 * x), G: uint8(100 + y), B: 7, A: 128})
		}
	}
	writePNG(t, fs, "/t/a_b_1_2.png", src)

	dec, err := New(Std, fs)
	require.NoError(t, err)
	img, err := dec.Decode(context.Background(), "/t/a_b_1_2.png")
	require.NoError(t, err)

	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, 3, img.Depth)
	require.Len(t, img.Buf, 18)
	// pixel (2,1), alpha dropped
	assert.Equal(t, []byte{20, 101, 7}, img.Buf[(1*3+2)*3:(1*3+2)*3+3])
}

func TestStdDecodeGray(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := image.NewGray(image.Rect(0, 0, 2, 2))
	src.SetGray(1, 1, color.Gray{Y: 200})
	writePNG(t, fs, "/t/g.png", src)

	img, err := NewStd(fs).Decode(context.Background(), "/t/g.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{200, 200, 200}, img.Buf[9:12])
}

func TestStdDecodeErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/t/garbage.jp2", []byte("not an image"), 0o644))
	dec := NewStd(fs)

	_, err := dec.Decode(context.Background(), "/t/missing.png")
	assert.Error(t, err)

	_, err = dec.Decode(context.Background(), "/t/garbage.jp2")
	assert.ErrorIs(t, err, image.ErrFormat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dec.Decode(ctx, "/t/garbage.jp2")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewUnknown(t *testing.T) {
	_, err := New("nope", afero.NewMemMapFs())
	assert.True(t, errors.Is(err, ErrUnknownDecoder))
	assert.Contains(t, Names(), Std)
}
