package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/backtest/engine"
	v1 "github.com/quantra-lab/barsim/internal/backtest/engine/engine_v1"
	"github.com/quantra-lab/barsim/internal/backtest/engine/engine_v1/datasource"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// runAction executes one backtest per matched bar file, writing each file's
// results into its own subfolder of the output directory.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataGlob := cmd.String("data")
	outputDir := cmd.String("output")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	files, err := filepath.Glob(dataGlob)
	if err != nil {
		return fmt.Errorf("failed to expand data glob %s: %w", dataGlob, err)
	}

	if len(files) == 0 {
		return fmt.Errorf("no bar files match %s", dataGlob)
	}

	log.Printf("Running backtest over %d file(s)...", len(files))

	for _, file := range files {
		if err := runOne(string(config), file, resultsFolderFor(outputDir, file)); err != nil {
			return fmt.Errorf("backtest failed for %s: %w", file, err)
		}
	}

	log.Println("Backtest completed successfully.")

	return nil
}

// runOne runs a single bar file through the engine with a progress bar.
func runOne(config string, dataPath string, resultsFolder string) error {
	lg, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer lg.Sync()

	source, err := datasource.NewDataSource(lg)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.Initialize(dataPath); err != nil {
		return err
	}

	backtester := v1.NewBacktestEngineV1()

	if err := backtester.Initialize(config); err != nil {
		return err
	}

	if err := backtester.SetDataSource(source); err != nil {
		return err
	}

	if err := backtester.SetResultsFolder(resultsFolder); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	callback := engine.OnProcessBarCallback(func(current int, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), filepath.Base(dataPath))
		}

		bar.Set(current)
	})

	if err := backtester.Run(optional.Some(callback)); err != nil {
		return err
	}

	if closer, ok := backtester.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}

// sweepAction runs the stop-loss x trailing-stop grid over a single bar file
// and writes sweep.csv into the output directory.
func sweepAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	outputDir := cmd.String("output")
	concurrency := cmd.Int("concurrency")

	grid := v1.SweepGrid{
		StopLossPcts:     cmd.FloatSlice("stop-loss"),
		TrailingStopPcts: cmd.FloatSlice("trailing-stop"),
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	var config v1.BacktestEngineV1Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	lg, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer lg.Sync()

	source, err := datasource.NewDataSource(lg)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.Initialize(dataPath); err != nil {
		return err
	}

	var raws []types.RawBar

	for raw, err := range source.ReadAll(config.StartTime, config.EndTime) {
		if err != nil {
			return err
		}

		raws = append(raws, raw)
	}

	bars, _ := v1.ResolveSignals(lg, raws)

	rows, err := v1.RunSweep(ctx, lg, config, bars, grid, int(concurrency))
	if err != nil {
		return err
	}

	state, err := v1.NewBacktestState(lg)
	if err != nil {
		return err
	}
	defer state.Close()

	if err := state.Initialize(); err != nil {
		return err
	}

	runID := uuid.New().String()

	if err := state.RecordSweep(runID, rows); err != nil {
		return err
	}

	if err := state.WriteSweep(outputDir, runID); err != nil {
		return err
	}

	log.Printf("Sweep completed: %d cell(s) written to %s", len(rows), outputDir)

	return nil
}

// schemaAction prints the engine configuration JSON schema.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	config := v1.DefaultConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

// resultsFolderFor derives a per-file results subfolder from the bar file
// name, so a glob run never mixes outputs.
func resultsFolderFor(outputDir string, dataPath string) string {
	base := filepath.Base(dataPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(outputDir, name)
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Single-position daily bar backtesting",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a backtest over one or more bar files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine YAML configuration",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Bar CSV file path or glob (e.g. data/*.csv)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for backtest results",
						Value:   "results",
					},
				},
				Action: runAction,
			},
			{
				Name:  "sweep",
				Usage: "Run a stop-loss x trailing-stop parameter sweep",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine YAML configuration",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Bar CSV file path",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for sweep results",
						Value:   "results",
					},
					&cli.FloatSliceFlag{
						Name:     "stop-loss",
						Usage:    "Stop-loss thresholds to sweep (fractions, 0 disables)",
						Required: true,
					},
					&cli.FloatSliceFlag{
						Name:     "trailing-stop",
						Usage:    "Trailing-stop thresholds to sweep (fractions, 0 disables)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Maximum concurrent sweep cells",
						Value: int64(runtime.NumCPU()),
					},
				},
				Action: sweepAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the engine configuration JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
