package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/internal/config"
	"github.com/kiesman99/orthocrop/internal/decode"
	"github.com/kiesman99/orthocrop/internal/logging"
	"github.com/kiesman99/orthocrop/internal/mosaic"
	"github.com/kiesman99/orthocrop/internal/stitcher"
	"github.com/kiesman99/orthocrop/pkg/tile"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orthocrop",
	Short: "Crop square RGB images out of tiled orthophoto datasets",
	Long: `orthocrop cuts a square window around a point out of a directory of
orthophoto tiles and writes it as a 256x256 RGB image.

Tiles are 1km x 1km rasters at 10 pixels per metre whose file names carry the
kilometre grid position as third and fourth '_' separated token, e.g.
dop10rgbi_32_462_5766_1_nw_2022.jp2. Windows crossing tile borders are stitched
from up to 2x2 neighbouring tiles.

Examples:
  # Crop 200m x 200m around a point into crop.png
  orthocrop --x 462999 --y 5767000 --radius 100 --data-dir ./nw -o crop.png

  # JPEG output with a world file (crop.jgw)
  orthocrop --x 462500 --y 5766500 --radius 50 --data-dir ./nw -f jpeg -w -o crop.jpg

  # Decode JPEG2000 tiles with GDAL (binary built with -tags godal)
  orthocrop --x 462500 --y 5766500 --radius 50 --data-dir ./nw --decoder native -o crop.png

  # Show the tiles of a directory
  orthocrop catalog ./nw

  # Start HTTP server
  orthocrop serve --data-root ./datasets --port 8080`,
	Version:      versioninfo.Short(),
	SilenceUsage: true,
	// If no coordinates are given by flag, config file or environment, show help
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.IsSet("x") && !viper.IsSet("y") {
			return cmd.Help()
		}
		return runCrop(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.orthocrop.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging in console format")
	rootCmd.PersistentFlags().String("decoder", decode.Std, "tile decoder ("+strings.Join(decode.Names(), "|")+")")
	rootCmd.PersistentFlags().Int("workers", 0, "concurrent tile decodes (default: number of CPUs)")
	rootCmd.PersistentFlags().Int("extent", tile.DefaultExtent, "tile side length in geographic units")
	rootCmd.PersistentFlags().Int("resolution", tile.DefaultResolution, "pixels per geographic unit")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("decoder", rootCmd.PersistentFlags().Lookup("decoder"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("grid.extent", rootCmd.PersistentFlags().Lookup("extent"))
	viper.BindPFlag("grid.resolution", rootCmd.PersistentFlags().Lookup("resolution"))

	// Crop options
	rootCmd.Flags().Int("x", 0, "easting of the crop centre")
	rootCmd.Flags().Int("y", 0, "northing of the crop centre")
	rootCmd.Flags().IntP("radius", "r", 100, "half the side length of the crop window")
	rootCmd.Flags().StringP("data-dir", "d", "", "tile directory")

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().StringP("format", "f", "png", "output format (png|jpeg)")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write world file next to the output")
	rootCmd.Flags().Int("size", tile.DefaultOutputSize, "output side length in pixels")

	viper.BindPFlag("x", rootCmd.Flags().Lookup("x"))
	viper.BindPFlag("y", rootCmd.Flags().Lookup("y"))
	viper.BindPFlag("radius", rootCmd.Flags().Lookup("radius"))
	viper.BindPFlag("data-dir", rootCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	viper.BindPFlag("worldfile", rootCmd.Flags().Lookup("worldfile"))
	viper.BindPFlag("output-size", rootCmd.Flags().Lookup("size"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".orthocrop" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".orthocrop")
	}

	config.SetupEnv(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads the configuration and builds the logger shared by all commands
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// newStitcher wires decoder, catalog cache and assembler from cfg
func newStitcher(cfg *config.Config, fs afero.Fs, log *zap.Logger) (*stitcher.Stitcher, error) {
	dec, err := decode.New(cfg.Decoder, fs)
	if err != nil {
		return nil, err
	}
	cache, err := catalog.NewCache(fs, cfg.TileGrid(), cfg.CatalogCacheSize, log)
	if err != nil {
		return nil, err
	}
	assembler := mosaic.New(dec, mosaic.Workers(cfg.Workers), mosaic.Logger(log))
	return stitcher.New(cache, assembler, stitcher.OutputSize(cfg.OutputSize), stitcher.Logger(log)), nil
}

func parseFormat(s string) (int, error) {
	switch strings.ToLower(s) {
	case "png":
		return tile.FormatPNG, nil
	case "jpeg", "jpg":
		return tile.FormatJPEG, nil
	default:
		return 0, fmt.Errorf("unknown format: %s", s)
	}
}

func runCrop(cmd *cobra.Command, args []string) error {
	dir := viper.GetString("data-dir")
	if dir == "" {
		return fmt.Errorf("tile directory is required (use --data-dir)")
	}
	format, err := parseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}
	output := viper.GetString("output")
	worldFile := viper.GetBool("worldfile")
	if output == "" {
		if worldFile {
			return fmt.Errorf("--worldfile needs an output file (use --output)")
		}
		if f, ok := cmd.OutOrStdout().(*os.File); ok {
			if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
				return fmt.Errorf("didn't specify output file and standard output is a terminal")
			}
		}
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	fs := afero.NewOsFs()
	st, err := newStitcher(cfg, fs, log)
	if err != nil {
		return err
	}

	res, err := st.GetCrop(cmd.Context(), stitcher.Request{
		X:      viper.GetInt("x"),
		Y:      viper.GetInt("y"),
		Radius: viper.GetInt("radius"),
		Dir:    dir,
	})
	if err != nil {
		return err
	}

	if output == "" {
		return res.Encode(cmd.OutOrStdout(), format)
	}
	f, err := fs.Create(output)
	if err != nil {
		return err
	}
	if err := res.Encode(f, format); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if worldFile {
		wf := strings.TrimSuffix(output, filepath.Ext(output)) + tile.WorldFileExt(format)
		if err := afero.WriteFile(fs, wf, res.WorldFile(), 0o644); err != nil {
			return fmt.Errorf("write world file: %w", err)
		}
	}

	log.Info("crop written",
		zap.String("output", output),
		zap.Int("tiles", len(res.Selection.Tiles)),
		zap.Duration("elapsed", res.Timing.Total()))
	return nil
}
