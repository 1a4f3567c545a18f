package catalog

import (
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

// Cache keeps built catalogs keyed by directory. Concurrent misses for the same
// directory share a single Build.
type Cache struct {
	fs       afero.Fs
	grid     tile.Grid
	log      *zap.Logger
	catalogs *lru.Cache[string, *Catalog]
	inflight singleflight.Group
}

// NewCache creates a cache holding at most size catalogs
func NewCache(fs afero.Fs, grid tile.Grid, size int, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	catalogs, err := lru.New[string, *Catalog](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	return &Cache{
		fs:       fs,
		grid:     grid,
		log:      log,
		catalogs: catalogs,
	}, nil
}

// Get returns the catalog for dir, building it on first use
func (c *Cache) Get(dir string) (*Catalog, error) {
	dir = filepath.Clean(dir)
	if cat, ok := c.catalogs.Get(dir); ok {
		return cat, nil
	}
	v, err, _ := c.inflight.Do(dir, func() (interface{}, error) {
		// a flight for dir may have completed between the lookup above and Do
		if cat, ok := c.catalogs.Get(dir); ok {
			return cat, nil
		}
		cat, err := Build(c.fs, dir, c.grid, c.log)
		if err != nil {
			return nil, err
		}
		c.catalogs.Add(dir, cat)
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// Invalidate drops the cached catalog of dir, the next Get rescans it
func (c *Cache) Invalidate(dir string) {
	c.catalogs.Remove(filepath.Clean(dir))
}

// Fs is the filesystem catalogs are read from
func (c *Cache) Fs() afero.Fs { return c.fs }
