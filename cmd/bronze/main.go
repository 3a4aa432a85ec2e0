package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	bronze "github.com/sepsten/bronze"
	"github.com/sepsten/bronze/adapters/imaging"
	"github.com/sepsten/bronze/adapters/vips"
	"github.com/sepsten/bronze/config"
	"github.com/sepsten/bronze/core"
	"github.com/sepsten/bronze/hooks"
)

var (
	flagConfig      string
	flagInfoFile    string
	flagEngine      string
	flagConcurrency int
	flagDry         bool
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bronze",
	Short: "Incremental image variant builder",
	Long: "bronze derives resized and re-encoded variants from source images\n" +
		"according to named transforms, regenerating only what changed.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("info-file") {
			cfg.InfoFile = flagInfoFile
		}
		if cmd.Flags().Changed("engine") {
			cfg.Engine = config.EngineBackend(flagEngine)
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Concurrency = flagConcurrency
		}
		if flagDry {
			cfg.Dry = true
		}

		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			logger = logger.Level(level)
		}
		if flagVerbose {
			logger = logger.Level(zerolog.DebugLevel)
		}

		var engine core.Engine
		switch cfg.Engine {
		case config.EngineVips:
			backend := vips.NewEngine(vips.EngineConfig{MaxWorkers: cfg.Concurrency})
			defer backend.Shutdown()
			engine = backend
		default:
			engine = imaging.New()
		}

		builder, err := bronze.New(cfg,
			bronze.WithEngine(engine),
			bronze.WithLogger(logger),
			bronze.WithReporter(hooks.NewLogReporter(logger.With().Str("component", "progress").Logger())),
		)
		if err != nil {
			return err
		}

		result, err := builder.Run(cmd.Context())
		if err != nil {
			return err
		}

		if result.Dry {
			kinds := make([]string, 0, len(result.Planned))
			for kind := range result.Planned {
				kinds = append(kinds, string(kind))
			}
			sort.Strings(kinds)
			fmt.Fprintln(cmd.OutOrStdout(), "dry run, planned operations:")
			for _, kind := range kinds {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %d\n", kind, result.Planned[core.OpKind(kind)])
			}
			return nil
		}

		if len(result.Errors) > 0 {
			for _, opErr := range result.Errors {
				logger.Error().Str("op", string(opErr.Kind)).Str("path", opErr.Path).Err(opErr.Err).Msg("operation failed")
			}
			return fmt.Errorf("%d of %d operations failed", len(result.Errors), totalPlanned(result))
		}
		return nil
	},
}

func totalPlanned(r *bronze.Result) int {
	total := 0
	for _, n := range r.Planned {
		total += n
	}
	return total
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "bronze.yaml", "configuration file path")
	rootCmd.Flags().StringVar(&flagInfoFile, "info-file", "", "snapshot file path override")
	rootCmd.Flags().StringVar(&flagEngine, "engine", "", "pixel engine: std or vips")
	rootCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "max concurrent operations")
	rootCmd.Flags().BoolVar(&flagDry, "dry", false, "plan only, execute nothing")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
