package catalog

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

func newFs(t *testing.T, dir string, names ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte("x"), 0o644))
	}
	return fs
}

var nwTiles = []string{
	"dop10rgbi_32_463_5767_1_nw_2022.jp2",
	"dop10rgbi_32_462_5766_1_nw_2022.jp2",
	"dop10rgbi_32_463_5766_1_nw_2022.jp2",
	"dop10rgbi_32_462_5767_1_nw_2022.jp2",
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantX   int
		wantY   int
		wantErr bool
	}{
		{name: "orthophoto", file: "dop10rgbi_32_462_5766_1_nw_2022.jp2", wantX: 462000, wantY: 5766000},
		{name: "short name", file: "a_b_1_2", wantX: 1000, wantY: 2000},
		{name: "too few tokens", file: "dop10rgbi_32_462.jp2", wantErr: true},
		{name: "non numeric easting", file: "dop10rgbi_32_abc_5766_1.jp2", wantErr: true},
		{name: "non numeric northing", file: "dop10rgbi_32_462_x_1.jp2", wantErr: true},
		{name: "readme", file: "README.md", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := ParseName(tt.file, 1000)
			if tt.wantErr {
				var malformed *MalformedTileNameError
				assert.True(t, errors.As(err, &malformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestBuild(t *testing.T) {
	dir := "/data/nw"
	fs := newFs(t, dir, append([]string{"README.md", ".hidden_1_2_3"}, nwTiles...)...)
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "sub_1_2_3"), 0o755))

	cat, err := Build(fs, dir, tile.DefaultGrid(), nil)
	require.NoError(t, err)

	require.Equal(t, 4, cat.Len())
	assert.Equal(t, []tile.Tile{
		{XOrigin: 462000, YOrigin: 5766000, Extent: 1000, Path: filepath.Join(dir, "dop10rgbi_32_462_5766_1_nw_2022.jp2")},
		{XOrigin: 462000, YOrigin: 5767000, Extent: 1000, Path: filepath.Join(dir, "dop10rgbi_32_462_5767_1_nw_2022.jp2")},
		{XOrigin: 463000, YOrigin: 5766000, Extent: 1000, Path: filepath.Join(dir, "dop10rgbi_32_463_5766_1_nw_2022.jp2")},
		{XOrigin: 463000, YOrigin: 5767000, Extent: 1000, Path: filepath.Join(dir, "dop10rgbi_32_463_5767_1_nw_2022.jp2")},
	}, cat.Tiles)

	assert.Equal(t, 462000, cat.MinX())
	assert.Equal(t, 463999, cat.MaxX())
	assert.Equal(t, 5766000, cat.MinY())
	assert.Equal(t, 5767999, cat.MaxY())

	require.Len(t, cat.Skipped, 1)
	assert.Equal(t, "README.md", cat.Skipped[0].Name)
}

func TestBuildDuplicatePosition(t *testing.T) {
	dir := "/data/dup"
	fs := newFs(t, dir, "dop10rgbi_32_462_5766_1_nw_2021.jp2", "dop10rgbi_32_462_5766_1_nw_2022.jp2")

	cat, err := Build(fs, dir, tile.DefaultGrid(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, filepath.Join(dir, "dop10rgbi_32_462_5766_1_nw_2021.jp2"), cat.Tiles[0].Path)
}

func TestBuildEmpty(t *testing.T) {
	dir := "/data/empty"
	fs := newFs(t, dir, "notes.txt")

	_, err := Build(fs, dir, tile.DefaultGrid(), nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestBuildMissingDir(t *testing.T) {
	_, err := Build(afero.NewMemMapFs(), "/nope", tile.DefaultGrid(), nil)
	assert.Error(t, err)
}

func TestContainsPointAndLookup(t *testing.T) {
	dir := "/data/nw"
	cat, err := Build(newFs(t, dir, nwTiles...), dir, tile.DefaultGrid(), nil)
	require.NoError(t, err)

	assert.True(t, cat.ContainsPoint(462000, 5766000))
	assert.True(t, cat.ContainsPoint(463999, 5767999))
	assert.False(t, cat.ContainsPoint(464000, 5767000))
	assert.False(t, cat.ContainsPoint(100, 100))

	got, ok := cat.Lookup(463, 5766)
	require.True(t, ok)
	assert.Equal(t, 463000, got.XOrigin)
	assert.Equal(t, 5766000, got.YOrigin)

	_, ok = cat.Lookup(464, 5766)
	assert.False(t, ok)

	assert.Len(t, cat.TilesMatching(462, 5767), 1)
	assert.Empty(t, cat.TilesMatching(461, 5767))
}

type countingFs struct {
	afero.Fs
	mu    sync.Mutex
	opens int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.Fs.Open(name)
}

func TestCache(t *testing.T) {
	dir := "/data/nw"
	fs := &countingFs{Fs: newFs(t, dir, nwTiles...)}
	cache, err := NewCache(fs, tile.DefaultGrid(), 4, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	cats := make([]*Catalog, 8)
	for i := range cats {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat, err := cache.Get(dir + "/")
			assert.NoError(t, err)
			cats[i] = cat
		}(i)
	}
	wg.Wait()

	for _, cat := range cats[1:] {
		assert.Same(t, cats[0], cat)
	}
	opens := fs.opens
	_, err = cache.Get(dir)
	require.NoError(t, err)
	assert.Equal(t, opens, fs.opens, "cached catalog must not rescan the directory")

	cache.Invalidate(dir)
	_, err = cache.Get(dir)
	require.NoError(t, err)
	assert.Greater(t, fs.opens, opens)
}
