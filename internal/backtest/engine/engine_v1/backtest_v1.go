package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/backtest/engine"
	"github.com/quantra-lab/barsim/internal/backtest/engine/engine_v1/datasource"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"github.com/quantra-lab/barsim/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	resultsFolder string
	log           *logger.Logger
	state         *BacktestState
	datasource    datasource.DataSource
}

func NewBacktestEngineV1() engine.Engine {
	return &BacktestEngineV1{
		config:        DefaultConfig(),
		resultsFolder: "",
		log:           nil,
		state:         nil,
		datasource:    nil,
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	// parse the config
	if err := yaml.Unmarshal([]byte(config), &b.config); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse engine config", err)
	}

	if err := b.config.Validate(); err != nil {
		return err
	}

	// initialize the logger
	var loggerError error

	b.log, loggerError = logger.NewLogger()
	if loggerError != nil {
		return loggerError
	}

	b.log.Debug("Backtest engine initialized",
		zap.String("config", config),
	)

	// initialize the state
	var err error

	b.state, err = NewBacktestState(b.log)
	if err != nil {
		return err
	}

	if err := b.state.Initialize(); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to initialize state", err)
	}

	return nil
}

// SetDataSource implements engine.Engine.
func (b *BacktestEngineV1) SetDataSource(dataSource datasource.DataSource) error {
	b.datasource = dataSource

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder

	if b.log != nil {
		b.log.Debug("Results folder set",
			zap.String("folder", folder),
		)
	}

	return nil
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

func (b *BacktestEngineV1) preRunCheck() error {
	if b.state == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "engine is not initialized")
	}

	if b.datasource == nil {
		return errors.New(errors.ErrCodeBacktestNoDatasource, "no data source set")
	}

	if b.resultsFolder == "" {
		return errors.New(errors.ErrCodeBacktestNoResultsDir, "no results folder set")
	}

	return nil
}

// Run implements engine.Engine. The run is a pure fold over the bar sequence:
// the same configuration and the same bars always produce byte-identical
// trades and equity outputs.
func (b *BacktestEngineV1) Run(onProcessBar optional.Option[engine.OnProcessBarCallback]) error {
	if err := b.preRunCheck(); err != nil {
		return err
	}

	// reset the results folder
	if _, err := os.Stat(b.resultsFolder); err == nil {
		os.RemoveAll(b.resultsFolder)
	}

	if err := os.MkdirAll(b.resultsFolder, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create results folder", err)
	}

	var raws []types.RawBar

	for raw, err := range b.datasource.ReadAll(b.config.StartTime, b.config.EndTime) {
		if err != nil {
			return err
		}

		raws = append(raws, raw)
	}

	if len(raws) == 0 {
		return errors.Newf(errors.ErrCodeDataNotFound, "no usable bars in %s", b.datasource.Path())
	}

	bars, resolved := ResolveSignals(b.log, raws)

	b.log.Info("Starting backtest",
		zap.Int("bars", len(bars)),
		zap.String("buy_column", resolved.Buy),
		zap.String("sell_column", resolved.Sell),
		zap.String("trend_column", resolved.Trend),
	)

	state := NewEngineState(&b.config, b.log)

	total := len(bars)

	for i, bar := range bars {
		state.Step(bar)

		if onProcessBar.IsSome() {
			onProcessBar.Unwrap()(i+1, total)
		}
	}

	runID := uuid.New().String()

	if err := b.state.RecordRun(runID, state.Trades(), state.Equity()); err != nil {
		return err
	}

	if err := b.state.Write(b.resultsFolder, runID); err != nil {
		return err
	}

	tradeResult, equityResult, err := b.state.Stats(runID)
	if err != nil {
		return err
	}

	stats := types.SummaryStats{
		ID:                runID,
		Timestamp:         time.Now().UTC(),
		TradeResult:       tradeResult,
		EquityResult:      equityResult,
		TotalFees:         types.RoundOutput(state.FeesPaid()),
		OpenPositionAtEnd: state.OpenPosition().IsSome(),
		DataPath:          b.datasource.Path(),
		TradesFilePath:    filepath.Join(b.resultsFolder, "trades.csv"),
		EquityFilePath:    filepath.Join(b.resultsFolder, "equity.csv"),
	}

	if err := types.WriteSummaryStats(filepath.Join(b.resultsFolder, "stats.yaml"), stats); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to write summary stats", err)
	}

	b.log.Info("Backtest finished",
		zap.String("run_id", runID),
		zap.Int("trades", stats.TradeResult.NumberOfTrades),
		zap.Float64("end_equity", stats.EquityResult.EndEquity),
		zap.Bool("open_position_at_end", stats.OpenPositionAtEnd),
	)

	return nil
}

// Close releases the engine's state store.
func (b *BacktestEngineV1) Close() error {
	if b.state == nil {
		return nil
	}

	return b.state.Close()
}
