package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/orthocrop/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog DIR",
	Short: "List the tiles of a directory and the range they cover",
	Long: `Scan a tile directory the way crop requests do and print the covered range
and every indexed tile. Files whose names carry no grid position are listed as
skipped.

Examples:
  orthocrop catalog ./nw
  orthocrop catalog ./nw --summary`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().Bool("summary", false, "only print the covered range")
	viper.BindPFlag("catalog.summary", catalogCmd.Flags().Lookup("summary"))
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	cat, err := catalog.Build(afero.NewOsFs(), args[0], cfg.TileGrid(), log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	b := cat.Bounds()
	fmt.Fprintf(out, "directory: %s\n", cat.Dir)
	fmt.Fprintf(out, "tiles:     %d (%d skipped)\n", cat.Len(), len(cat.Skipped))
	fmt.Fprintf(out, "x range:   [%d, %d]\n", b.MinX, b.MaxX)
	fmt.Fprintf(out, "y range:   [%d, %d]\n", b.MinY, b.MaxY)
	if viper.GetBool("catalog.summary") {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "X\tY\tFILE")
	for _, t := range cat.Tiles {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", t.XOrigin, t.YOrigin, filepath.Base(t.Path))
	}
	for _, s := range cat.Skipped {
		fmt.Fprintf(tw, "-\t-\t%s (skipped: %s)\n", s.Name, s.Reason)
	}
	return tw.Flush()
}
