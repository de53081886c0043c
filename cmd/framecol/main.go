// Command framecol converts decoded game-replay batches into columnar
// analytics files: nested Parquet, flat Arrow arrays, or nested JSON.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/compression"
	"github.com/replaystats/framecol/pkg/config"
	"github.com/replaystats/framecol/pkg/logger"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/sink/flatsink"
	"github.com/replaystats/framecol/pkg/sink/jsonsink"
	"github.com/replaystats/framecol/pkg/sink/parquetsink"
)

var version = "0.1.0"

func main() {
	v := config.New()

	var configFile string

	root := &cobra.Command{
		Use:   "framecol",
		Short: "Convert game-replay batches to columnar analytics files",
		Long: `framecol reads a decoded replay batch, resolves which protocol-version
field tiers the batch carries, pivots the frames into typed columns and
writes them through the selected sink: nested Parquet for warehouse loads,
flat Arrow arrays for array-oriented tooling, or nested JSON for inspection.`,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (optional)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	must(v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level")))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("framecol v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	convertCmd := &cobra.Command{
		Use:   "convert <batch.json>",
		Short: "Convert one batch to columnar output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}
			defer logger.Sync()

			outDir, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			return runConvert(args[0], outDir, cfg)
		},
	}
	convertCmd.Flags().String("out", ".", "output directory")
	convertCmd.Flags().String("format", "", "sink format (parquet, flat, json)")
	convertCmd.Flags().String("compression", "", "compression codec (none, gzip, lz4, zstd)")
	convertCmd.Flags().Int("level", 0, "compression level (1 fastest .. 9 best)")
	convertCmd.Flags().Bool("enum-names", false, "render enumerated fields as names (json format)")
	must(v.BindPFlag("sink.format", convertCmd.Flags().Lookup("format")))
	must(v.BindPFlag("sink.compression", convertCmd.Flags().Lookup("compression")))
	must(v.BindPFlag("sink.level", convertCmd.Flags().Lookup("level")))
	must(v.BindPFlag("sink.enum_names", convertCmd.Flags().Lookup("enum-names")))
	root.AddCommand(convertCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Encoding:    cfg.Log.Encoding,
	})
}

func runConvert(input, outDir string, cfg *config.Config) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	batch, err := replay.ReadBatch(bytes.NewReader(data))
	if err != nil {
		return err
	}
	digest := batch.SourceDigest
	if digest == 0 {
		digest = xxhash.Sum64(data)
	}

	depths, err := replay.Resolve(batch.Frames)
	if err != nil {
		return err
	}
	tree, err := columns.Transform(batch.Frames, depths)
	if err != nil {
		return err
	}

	codec, err := compression.ParseAlgorithm(cfg.Sink.Compression)
	if err != nil {
		return err
	}

	logger.Info("converting batch",
		zap.String("input", input),
		zap.String("format", cfg.Sink.Format),
		zap.Int("ports", tree.NumPorts),
		zap.Int("frames", tree.NumFrames))

	switch cfg.Sink.Format {
	case config.FormatParquet:
		opts := parquetsink.Options{SourceDigest: digest}
		if err := parquetsink.WriteFrames(filepath.Join(outDir, "frames.parquet"), tree, opts); err != nil {
			return err
		}
		return parquetsink.WriteItems(filepath.Join(outDir, "items.parquet"), tree, opts)
	case config.FormatFlat:
		return flatsink.Write(filepath.Join(outDir, "frames.arrow"), tree, flatsink.Options{
			SourceDigest: digest,
			Codec:        codec,
		})
	case config.FormatJSON:
		return jsonsink.Write(filepath.Join(outDir, jsonName(codec)), tree, jsonsink.Options{
			SourceDigest: digest,
			Codec:        codec,
			Level:        compression.Level(cfg.Sink.Level),
			EnumNames:    cfg.Sink.EnumNames,
		})
	}
	return nil
}

func jsonName(codec compression.Algorithm) string {
	switch codec {
	case compression.Gzip:
		return "frames.json.gz"
	case compression.LZ4:
		return "frames.json.lz4"
	case compression.Zstd:
		return "frames.json.zst"
	default:
		return "frames.json"
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
