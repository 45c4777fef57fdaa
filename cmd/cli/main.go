package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/dataset"
	"github.com/pep299/autoinsight/internal/enrich"
	"github.com/pep299/autoinsight/internal/handlers"
	"github.com/pep299/autoinsight/internal/logging"
	"github.com/pep299/autoinsight/internal/scoring"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	var cfg *config.Config
	var logger *slog.Logger

	return &cli.Command{
		Name:    "autoinsight",
		Usage:   "Summarize and score vehicles from the inventory dataset",
		Version: handlers.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Dataset path or gs:// URI (overrides DATASET_PATH)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Prints verbose logs",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return ctx, fmt.Errorf("loading configuration: %w", err)
			}
			if path := cmd.String("dataset"); path != "" {
				cfg.DatasetPath = path
			}
			level := cfg.LogLevel
			if cmd.Bool("debug") {
				level = "debug"
			}
			logger = logging.SetDefault(level, cfg.LogFormat)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "summary",
				Usage:     "Summarize one or more VINs, using the LLM when configured",
				ArgsUsage: "VIN [VIN...]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					vins := cmd.Args().Slice()
					if len(vins) == 0 {
						return errors.New("at least one VIN is required")
					}
					server, err := handlers.NewServer(ctx, cfg, logger)
					if err != nil {
						return err
					}
					return writeOutput(out, server.SummarizeBatch(ctx, vins))
				},
			},
			{
				Name:      "score",
				Usage:     "Show the deterministic risk score and its factors",
				ArgsUsage: "VIN",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("exactly one VIN is required")
					}
					ds, err := dataset.Open(ctx, cfg)
					if err != nil {
						return err
					}
					rec, err := ds.Lookup(cmd.Args().First())
					if err != nil {
						return err
					}
					return writeOutput(out, map[string]interface{}{
						"summary":  enrich.Fallback(rec),
						"analysis": scoring.Analyze(rec),
					})
				},
			},
			{
				Name:  "list",
				Usage: "List the VINs in the dataset",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					ds, err := dataset.Open(ctx, cfg)
					if err != nil {
						return err
					}
					for _, vin := range ds.VINs() {
						fmt.Fprintln(out, vin)
					}
					return nil
				},
			},
		},
	}
}

func writeOutput(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
