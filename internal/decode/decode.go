// Package decode provides the tile.Decoder implementations: a pure Go decoder
// for the formats registered with the image package and, when built with the
// godal tag, a GDAL backed decoder able to read JPEG2000 orthophotos.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	// registered formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spf13/afero"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Decoder names
const (
	Std    = "std"
	Native = "native"
)

// ErrUnknownDecoder is returned by New for a name no decoder is registered under.
var ErrUnknownDecoder = errors.New("unknown decoder")

// Factory builds a decoder reading from fs
type Factory func(fs afero.Fs) (tile.Decoder, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		Std: func(fs afero.Fs) (tile.Decoder, error) { return NewStd(fs), nil },
	}
)

// Register makes a decoder available under name
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New returns the decoder registered under name
func New(name string, fs afero.Fs) (tile.Decoder, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownDecoder, name, Names())
	}
	return f(fs)
}

// Names lists the registered decoders
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StdDecoder decodes tiles with the image package
type StdDecoder struct {
	fs afero.Fs
}

// NewStd returns a decoder reading tiles from fs
func NewStd(fs afero.Fs) *StdDecoder {
	return &StdDecoder{fs: fs}
}

// Decode implements tile.Decoder
func (d *StdDecoder) Decode(ctx context.Context, path string) (*tile.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tile.FromImage(img), nil
}
