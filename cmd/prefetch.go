package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/catalog"
	"github.com/kiesman99/orthocrop/internal/decode"
	"github.com/kiesman99/orthocrop/internal/prefetch"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch DIR",
	Short: "Decode every tile of a directory",
	Long: `Decode the tiles of a directory on the worker pool, e.g. to warm the page
cache before serving it or to find tiles that fail to decode.

Examples:
  orthocrop prefetch ./nw
  orthocrop prefetch ./nw --limit 20 --decoder native`,
	Args: cobra.ExactArgs(1),
	RunE: runPrefetch,
}

func init() {
	rootCmd.AddCommand(prefetchCmd)

	prefetchCmd.Flags().Int("limit", 0, "only decode the first N tiles (0: all)")
	prefetchCmd.Flags().Bool("no-progress", false, "do not draw a progress bar")
	viper.BindPFlag("prefetch.limit", prefetchCmd.Flags().Lookup("limit"))
	viper.BindPFlag("prefetch.no-progress", prefetchCmd.Flags().Lookup("no-progress"))
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	fs := afero.NewOsFs()
	cat, err := catalog.Build(fs, args[0], cfg.TileGrid(), log)
	if err != nil {
		return err
	}
	dec, err := decode.New(cfg.Decoder, fs)
	if err != nil {
		return err
	}

	opts := prefetch.Options{
		Limit:   viper.GetInt("prefetch.limit"),
		Workers: cfg.Workers,
		Log:     log,
	}
	if !viper.GetBool("prefetch.no-progress") {
		opts.Progress = cmd.ErrOrStderr()
	}
	reports, err := prefetch.Run(cmd.Context(), cat, dec, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	expected := cfg.TileGrid().TilePixels()
	for _, r := range reports {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "FAIL %s %s: %v\n", r.Tile, filepath.Base(r.Tile.Path), r.Err)
		case r.Width != expected || r.Height != expected:
			fmt.Fprintf(out, "SIZE %s %s: %dx%d, expected %dx%d\n", r.Tile, filepath.Base(r.Tile.Path), r.Width, r.Height, expected, expected)
		}
	}

	failed := prefetch.Failed(reports)
	log.Info("prefetch done", zap.Int("tiles", len(reports)), zap.Int("failed", len(failed)))
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d tiles failed to decode", len(failed), len(reports))
	}
	return nil
}
