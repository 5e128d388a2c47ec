package engine

import (
	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/backtest/engine/engine_v1/datasource"
)

// OnProcessBarCallback is called for each bar processed.
type OnProcessBarCallback func(current int, total int)

type Engine interface {
	// Initialize the engine with the given YAML configuration content.
	Initialize(config string) error
	// SetDataSource sets the bar data source for the engine.
	SetDataSource(dataSource datasource.DataSource) error
	// SetResultsFolder sets the output directory for saving backtest results.
	SetResultsFolder(folder string) error
	// Run executes the backtest over the configured data source.
	// A position still open on the last bar is marked to that bar's close in
	// the final equity point but is not force-closed into a trade record.
	Run(onProcessBar optional.Option[OnProcessBarCallback]) error
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
