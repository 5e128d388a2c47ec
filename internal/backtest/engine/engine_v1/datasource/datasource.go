package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/types"
)

// RequiredColumns are the columns every bar file must carry. A file missing
// any of them is rejected at Initialize time, before any bar is processed.
var RequiredColumns = []string{"date", "open", "high", "low", "close"}

type DataSource interface {
	// Initialize loads the bar file at the given path and verifies the
	// required OHLC columns are present.
	Initialize(path string) error
	// ReadAll yields the pre-cleaned bars in ascending date order. Rows with
	// an unparseable date or a null close never reach the caller.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.RawBar, error) bool)
	// Count returns the number of bars ReadAll would yield.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Columns returns the column names of the loaded file.
	Columns() ([]string, error)
	// Path returns the path of the loaded file, or "" before Initialize.
	Path() string
	// Close closes the data source and releases any resources.
	Close() error
}
