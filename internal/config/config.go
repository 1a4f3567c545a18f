// Package config holds the runtime configuration assembled from flags, the
// config file and ORTHOCROP_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kiesman99/orthocrop/pkg/tile"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. ORTHOCROP_SERVER_PORT for server.port
const EnvPrefix = "ORTHOCROP"

// Config is the complete runtime configuration
type Config struct {
	// DataRoot is the directory whose subdirectories are served as datasets
	DataRoot         string `mapstructure:"data-root" default:"."`
	Decoder          string `mapstructure:"decoder" default:"std" validate:"oneof=std native"`
	Workers          int    `mapstructure:"workers" validate:"gte=0"`
	OutputSize       int    `mapstructure:"output-size" default:"256" validate:"gt=0,lte=4096"`
	CatalogCacheSize int    `mapstructure:"catalog-cache-size" default:"16" validate:"gt=0"`
	Verbose          bool   `mapstructure:"verbose"`

	Grid   Grid   `mapstructure:"grid"`
	Server Server `mapstructure:"server"`
}

// Grid is the tiling scheme of the datasets
type Grid struct {
	Extent     int `mapstructure:"extent" default:"1000" validate:"gt=0"`
	Resolution int `mapstructure:"resolution" default:"10" validate:"gt=0"`
}

// Server configures the HTTP API
type Server struct {
	Bind    string        `mapstructure:"bind" default:"localhost"`
	Port    int           `mapstructure:"port" default:"8080" validate:"gte=1,lte=65535"`
	Timeout time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	// RateLimit is the sustained number of crop requests per second, 0 disables limiting
	RateLimit float64 `mapstructure:"rate-limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" default:"10" validate:"gt=0"`
}

// TileGrid converts the grid section to a tile.Grid
func (c *Config) TileGrid() tile.Grid {
	return tile.Grid{Extent: c.Grid.Extent, Resolution: c.Grid.Resolution}
}

// Addr is the listen address of the server
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// SetupEnv makes v read ORTHOCROP_* variables, with '.' and '-' in keys
// replaced by '_'
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from v. Keys v does not know keep their defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
