// Package catalog indexes a directory of orthophoto tiles by the grid position
// encoded in their file names.
package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Token positions of the easting and northing kilometre indices in a tile name,
// e.g. dop10rgbi_32_462_5766_1_nw_2022.jp2
const (
	xToken = 2
	yToken = 3
)

// ErrEmptyCatalog is returned when a directory holds no parseable tile.
var ErrEmptyCatalog = errors.New("no tiles found")

// MalformedTileNameError reports a file whose name does not carry a grid position
type MalformedTileNameError struct {
	Name   string
	Reason string
}

func (e *MalformedTileNameError) Error() string {
	return fmt.Sprintf("malformed tile name %q: %s", e.Name, e.Reason)
}

type key struct{ x, y int }

// Catalog is the immutable index of one tile directory
type Catalog struct {
	Dir     string
	Grid    tile.Grid
	Tiles   []tile.Tile
	Skipped []*MalformedTileNameError

	bounds tile.Bounds
	index  map[key]int
}

// ParseName extracts the lower-left origin of a tile from its file name.
func ParseName(name string, extent int) (x, y int, err error) {
	parts := strings.Split(name, "_")
	if len(parts) <= yToken {
		return 0, 0, &MalformedTileNameError{Name: name, Reason: fmt.Sprintf("expected at least %d '_' separated tokens", yToken+1)}
	}
	xi, err := strconv.Atoi(parts[xToken])
	if err != nil {
		return 0, 0, &MalformedTileNameError{Name: name, Reason: fmt.Sprintf("easting token %q is not an integer", parts[xToken])}
	}
	yi, err := strconv.Atoi(parts[yToken])
	if err != nil {
		return 0, 0, &MalformedTileNameError{Name: name, Reason: fmt.Sprintf("northing token %q is not an integer", parts[yToken])}
	}
	return xi * extent, yi * extent, nil
}

// Build lists dir and indexes every file whose name parses. Files that do not
// parse are skipped with a warning so stray files never block a directory.
func Build(fs afero.Fs, dir string, grid tile.Grid, log *zap.Logger) (*Catalog, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	// ReadDir returns entries sorted by name, duplicates resolve to the first one
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	c := &Catalog{
		Dir:   dir,
		Grid:  grid,
		index: make(map[key]int, len(entries)),
	}
	seen := make(map[key]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		x, y, err := ParseName(name, grid.Extent)
		if err != nil {
			var malformed *MalformedTileNameError
			if errors.As(err, &malformed) {
				log.Warn("skipping file", zap.String("dir", dir), zap.Error(err))
				c.Skipped = append(c.Skipped, malformed)
				continue
			}
			return nil, err
		}
		k := key{x, y}
		if first, dup := seen[k]; dup {
			log.Warn("duplicate tile position, keeping first",
				zap.String("kept", first), zap.String("ignored", name),
				zap.Int("x", x), zap.Int("y", y))
			continue
		}
		seen[k] = name
		c.Tiles = append(c.Tiles, tile.Tile{
			XOrigin: x,
			YOrigin: y,
			Extent:  grid.Extent,
			Path:    filepath.Join(dir, name),
		})
	}

	if len(c.Tiles) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrEmptyCatalog)
	}

	sort.Slice(c.Tiles, func(i, j int) bool {
		if c.Tiles[i].XOrigin != c.Tiles[j].XOrigin {
			return c.Tiles[i].XOrigin < c.Tiles[j].XOrigin
		}
		return c.Tiles[i].YOrigin < c.Tiles[j].YOrigin
	})

	first := c.Tiles[0]
	c.bounds = tile.Bounds{MinX: first.XOrigin, MinY: first.YOrigin, MaxX: first.XOrigin, MaxY: first.YOrigin}
	for i, t := range c.Tiles {
		c.index[key{t.XIndex(), t.YIndex()}] = i
		c.bounds.MinX = min(c.bounds.MinX, t.XOrigin)
		c.bounds.MinY = min(c.bounds.MinY, t.YOrigin)
		c.bounds.MaxX = max(c.bounds.MaxX, t.XOrigin)
		c.bounds.MaxY = max(c.bounds.MaxY, t.YOrigin)
	}
	c.bounds.MaxX += grid.Extent - 1
	c.bounds.MaxY += grid.Extent - 1

	log.Debug("catalog built",
		zap.String("dir", dir),
		zap.Int("tiles", len(c.Tiles)),
		zap.Int("skipped", len(c.Skipped)),
		zap.Int("minX", c.bounds.MinX), zap.Int("maxX", c.bounds.MaxX),
		zap.Int("minY", c.bounds.MinY), zap.Int("maxY", c.bounds.MaxY))
	return c, nil
}

// Bounds returns the covered range; maxima are inclusive.
func (c *Catalog) Bounds() tile.Bounds { return c.bounds }

// MinX is the smallest covered easting.
func (c *Catalog) MinX() int { return c.bounds.MinX }

// MaxX is the largest covered easting.
func (c *Catalog) MaxX() int { return c.bounds.MaxX }

// MinY is the smallest covered northing.
func (c *Catalog) MinY() int { return c.bounds.MinY }

// MaxY is the largest covered northing.
func (c *Catalog) MaxY() int { return c.bounds.MaxY }

// ContainsPoint reports whether (x, y) lies inside the covered range. It does not
// check that the tile under the point is actually present.
func (c *Catalog) ContainsPoint(x, y int) bool {
	return x >= c.bounds.MinX && x <= c.bounds.MaxX &&
		y >= c.bounds.MinY && y <= c.bounds.MaxY
}

// Lookup returns the tile at grid position (xIdx, yIdx), in kilometre units.
func (c *Catalog) Lookup(xIdx, yIdx int) (tile.Tile, bool) {
	i, ok := c.index[key{xIdx, yIdx}]
	if !ok {
		return tile.Tile{}, false
	}
	return c.Tiles[i], true
}

// TilesMatching returns the tiles at grid position (xIdx, yIdx): none or one.
func (c *Catalog) TilesMatching(xIdx, yIdx int) []tile.Tile {
	t, ok := c.Lookup(xIdx, yIdx)
	if !ok {
		return nil
	}
	return []tile.Tile{t}
}

// Len is the number of indexed tiles
func (c *Catalog) Len() int { return len(c.Tiles) }
