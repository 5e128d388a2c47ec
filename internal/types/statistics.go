package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeResult struct {
	// Count of all closed trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of winning trades that have positive gross pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of losing trades that have negative gross pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
}

type EquityResult struct {
	// Equity on the first bar.
	StartEquity float64 `yaml:"start_equity"`
	// Equity on the last bar.
	EndEquity float64 `yaml:"end_equity"`
	// EndEquity / StartEquity - 1.
	ReturnPct float64 `yaml:"return_pct"`
	// Largest peak-to-trough decline of the equity curve, as a fraction of the peak.
	MaxDrawdown float64 `yaml:"max_drawdown"`
}

type SummaryStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp"`
	// Result of all closed trades.
	TradeResult TradeResult `yaml:"trade_result"`
	// Result of the equity curve.
	EquityResult EquityResult `yaml:"equity_result"`
	// Total fees and tax paid across entries and exits.
	TotalFees float64 `yaml:"total_fees"`
	// Whether a position was still open on the last bar. Open positions are
	// marked to the last close but never force-closed into a trade record.
	OpenPositionAtEnd bool `yaml:"open_position_at_end"`
	// DataPath is the path to the bar data file used for this backtest.
	DataPath string `yaml:"data_path"`
	// TradesFilePath is the path to the exported trades file.
	TradesFilePath string `yaml:"trades_file_path"`
	// EquityFilePath is the path to the exported equity curve file.
	EquityFilePath string `yaml:"equity_file_path"`
}

func WriteSummaryStats(path string, stats SummaryStats) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal summary stats to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary stats to file: %w", err)
	}

	return nil
}
