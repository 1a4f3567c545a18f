//go:build godal

package decode

import (
	"context"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/spf13/afero"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

var registerDrivers sync.Once

func init() {
	Register(Native, func(fs afero.Fs) (tile.Decoder, error) {
		if _, ok := fs.(*afero.OsFs); !ok {
			return nil, fmt.Errorf("%s decoder only reads from the OS filesystem", Native)
		}
		registerDrivers.Do(godal.RegisterAll)
		return &GDALDecoder{}, nil
	})
}

// GDALDecoder reads tiles through GDAL, e.g. the JPEG2000 orthophotos the
// image package cannot decode. Every call opens its own dataset.
type GDALDecoder struct{}

// Decode implements tile.Decoder. The first three bands are read pixel
// interleaved straight into a Go owned buffer; the dataset is closed before
// returning so no GDAL memory outlives the call.
func (d *GDALDecoder) Decode(ctx context.Context, path string) (*tile.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close() //nolint:errcheck

	str := ds.Structure()
	if str.NBands < 3 {
		return nil, fmt.Errorf("%s: need at least 3 bands, got %d", path, str.NBands)
	}

	img := tile.NewImageData(str.SizeX, str.SizeY)
	// bands beyond RGB (the infrared channel of dop10rgbi) are dropped here
	if err := ds.Read(0, 0, img.Buf, str.SizeX, str.SizeY, godal.Bands(0, 1, 2)); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return img, nil
}
