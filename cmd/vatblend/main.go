package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/airbusgeo/vatblend"
	"github.com/airbusgeo/vatblend/gdalio"
	"github.com/airbusgeo/vatblend/log"
	"github.com/airbusgeo/vatblend/store"
	"github.com/airbusgeo/vatblend/terrain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stcl *storage.Client
var gcsa *osio.Adapter

var verbose bool
var blocksize string
var numCachedBlocks int
var startTime time.Time

var recipeFile string
var terrainsFile string
var workers int
var threads int
var combinedFill, tiledFill bool
var keepNoData bool
var opacity float64
var save8bit bool
var copts []string

var rootCmd = &cobra.Command{
	Use:   "vatblend",
	Short: "terrain visualization and blending cli",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		ctx := cmd.Context()
		var err error

		godal.RegisterAll()
		if stcl, err = storage.NewClient(ctx); err != nil {
			// local files remain usable without cloud credentials
			log.Logger(ctx).Warn("gs:// paths disabled", zap.Error(err))
			stcl = nil
			return nil
		}
		gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
		if err != nil {
			return fmt.Errorf("gcs.handle: %w", err)
		}
		gcsa, err = osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numCachedBlocks))
		if err != nil {
			return fmt.Errorf("osio.new: %w", err)
		}
		if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
			return fmt.Errorf("register osio: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
			cmd.Name(), time.Since(startTime).Seconds())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numCachedBlocks, "numblocks", 1000, "number of gs cached blocks")
	rootCmd.AddCommand(combinedCmd, tiledCmd, tilesCmd, workflowCmd)

	for _, cmd := range []*cobra.Command{combinedCmd, tiledCmd} {
		flags := cmd.Flags()
		flags.StringVar(&recipeFile, "recipe", "", "json or yaml VAT recipe (default: built-in)")
		flags.StringVar(&terrainsFile, "terrains", "", "json or yaml terrain settings (default: built-in general and flat)")
		flags.IntVar(&workers, "workers", runtime.NumCPU(), "number of units processed concurrently")
		flags.IntVar(&threads, "threads", 1, "number of threads used by each derivative computation")
		flags.Float64Var(&opacity, "opacity", 50, "opacity of the general VAT over the flat one, in percent")
		flags.BoolVar(&save8bit, "save8bit", false, "also save 8bit versions of the combined VAT")
		flags.BoolVar(&keepNoData, "keepNoData", false, "reset derivatives to no-data where the source has no-data")
		flags.StringArrayVar(&copts, "co", nil, "tif creation options")
	}
	combinedCmd.Flags().BoolVar(&combinedFill, "fill", false, "interpolate no-data cells before computing derivatives")
	tiledCmd.Flags().BoolVar(&tiledFill, "fill", true, "interpolate no-data cells before computing derivatives")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newConfig assembles the gdal backed collaborators of the drivers
func newConfig(fillNoData bool) (vatblend.Config, error) {
	cfg := vatblend.Config{
		Source:             gdalio.Source{},
		Provider:           terrain.Native{Workers: threads},
		Workers:            workers,
		FillNoData:         fillNoData,
		KeepOriginalNoData: keepNoData,
	}
	var err error
	if recipeFile != "" {
		if cfg.Recipe, err = vatblend.LoadRecipe(recipeFile); err != nil {
			return cfg, err
		}
	}
	if terrainsFile != "" {
		if cfg.Terrains, err = vatblend.LoadTerrains(terrainsFile); err != nil {
			return cfg, err
		}
	}
	router := store.Router{}
	if stcl != nil {
		router.GCS = &store.GCS{Client: stcl}
	}
	cfg.Store = router
	cfg.Sink = gdalio.Sink{Uploader: router, CreationOptions: creationOptions(copts)}
	return cfg, nil
}

// creationOptions overrides the default product creation options with
// KEY=VALUE pairs. An empty value removes the option.
func creationOptions(overrides []string) []string {
	if len(overrides) == 0 {
		return nil
	}
	opts := map[string]string{}
	var keys []string
	for _, co := range append(append([]string{}, gdalio.DefaultCreationOptions...), overrides...) {
		k, v, _ := strings.Cut(co, "=")
		if _, ok := opts[k]; !ok {
			keys = append(keys, k)
		}
		opts[k] = v
	}
	var out []string
	for _, k := range keys {
		if opts[k] != "" {
			out = append(out, k+"="+opts[k])
		}
	}
	return out
}

func logReport(ctx context.Context, report vatblend.Report) error {
	log.Logger(ctx).Info("batch finished",
		zap.Int("done", report.Done()),
		zap.Int("skipped", report.Skipped()),
		zap.Int("failed", report.Failed()))
	return report.Err()
}
