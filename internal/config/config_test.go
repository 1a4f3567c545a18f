package config

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.DataRoot)
	assert.Equal(t, "std", cfg.Decoder)
	assert.Equal(t, 256, cfg.OutputSize)
	assert.Equal(t, 16, cfg.CatalogCacheSize)
	assert.Equal(t, tile.DefaultGrid(), cfg.TileGrid())
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Zero(t, cfg.Server.RateLimit)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("data-root", "/srv/dop")
	v.Set("decoder", "native")
	v.Set("grid.resolution", 5)
	v.Set("server.port", 9090)
	v.Set("server.timeout", "5s")
	v.Set("server.rate-limit", 2.5)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/dop", cfg.DataRoot)
	assert.Equal(t, "native", cfg.Decoder)
	assert.Equal(t, tile.Grid{Extent: 1000, Resolution: 5}, cfg.TileGrid())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORTHOCROP_SERVER_PORT", "7070")
	t.Setenv("ORTHOCROP_OUTPUT_SIZE", "512")

	v := viper.New()
	SetupEnv(v)
	// AutomaticEnv only resolves keys viper knows about
	v.SetDefault("server.port", 8080)
	v.SetDefault("output-size", 256)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 512, cfg.OutputSize)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
		field string
	}{
		{"decoder", "magick", "Decoder"},
		{"output-size", 0, "OutputSize"},
		{"grid.extent", -1, "Extent"},
		{"server.port", 70000, "Port"},
		{"workers", -2, "Workers"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			require.Error(t, err)

			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}
