package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
)

// FromImage converts a decoded Go image to a caller-owned RGB raster, dropping alpha
func FromImage(img image.Image) *ImageData {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := NewImageData(width, height)

	switch src := img.(type) {
	case *image.RGBA:
		copyRGBA(out, src.Pix, src.Stride)
		return out
	case *image.NRGBA:
		// NRGBA is not premultiplied, the colour channels can be taken as is
		copyRGBA(out, src.Pix, src.Stride)
		return out
	}

	// YCbCr, gray and paletted tiles go through draw's fast paths
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	copyRGBA(out, rgba.Pix, rgba.Stride)
	return out
}

func copyRGBA(out *ImageData, pix []byte, stride int) {
	for y := 0; y < out.Height; y++ {
		row := pix[y*stride : y*stride+out.Width*4]
		dst := out.Buf[y*out.Stride() : (y+1)*out.Stride()]
		for x := 0; x < out.Width; x++ {
			dst[x*3] = row[x*4]
			dst[x*3+1] = row[x*4+1]
			dst[x*3+2] = row[x*4+2]
		}
	}
}

// ToRGBA expands the window r of the raster to an opaque RGBA image
func (img *ImageData) ToRGBA(r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := img.Buf[(r.Min.Y+y)*img.Stride()+r.Min.X*img.Depth:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < r.Dx(); x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return out
}

// Bounds returns the full pixel rectangle of the raster
func (img *ImageData) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// Encode writes the raster in the requested output format
func Encode(w io.Writer, img *ImageData, format int) error {
	rgba := img.ToRGBA(img.Bounds())
	switch format {
	case FormatPNG:
		return png.Encode(w, rgba)
	case FormatJPEG:
		return jpeg.Encode(w, rgba, &jpeg.Options{Quality: 95})
	default:
		return fmt.Errorf("unknown output format %d", format)
	}
}

// EncodeBytes is Encode into a byte slice
func EncodeBytes(img *ImageData, format int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WorldFileExt returns the world file extension matching an output format
func WorldFileExt(format int) string {
	if format == FormatJPEG {
		return ".jgw"
	}
	return ".pgw"
}

// WorldFile generates world file data for an image whose top-left pixel corner
// sits at (minx, maxy) with the given pixel sizes.
func WorldFile(px, py, minx, maxy float64) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%24.10f\n", px)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -py)
	// world files reference the centre of the top-left pixel
	fmt.Fprintf(&buf, "%24.10f\n", minx+px/2)
	fmt.Fprintf(&buf, "%24.10f\n", maxy-py/2)
	return buf.Bytes()
}
