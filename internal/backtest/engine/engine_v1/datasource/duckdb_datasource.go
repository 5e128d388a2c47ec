package datasource

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"github.com/quantra-lab/barsim/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBDataSource reads daily bar CSV files through DuckDB's read_csv_auto.
// Every column is read as VARCHAR so the raw signal columns survive verbatim
// for the resolver; typed parsing happens in Go.
type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	path   string
}

// NewDataSource creates a new DuckDB-backed bar data source.
func NewDataSource(log *logger.Logger) (DataSource, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: log,
	}, nil
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing bar data source", zap.String("path", path))

	_, err := d.db.Exec(`DROP VIEW IF EXISTS bars;`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	// Using raw SQL as Squirrel doesn't support CREATE VIEW.
	query := fmt.Sprintf(`
		CREATE VIEW bars AS
		SELECT * FROM read_csv_auto('%s', header=true, all_varchar=true);
	`, path)

	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to load bar file %s", path)
	}

	if err := d.verifyRequiredColumns(path); err != nil {
		return err
	}

	d.path = path

	return nil
}

// Path implements DataSource.
func (d *DuckDBDataSource) Path() string {
	return d.path
}

// verifyRequiredColumns rejects inputs missing any OHLC column. This is the
// fatal pre-loop schema check: nothing is processed from a malformed file.
func (d *DuckDBDataSource) verifyRequiredColumns(path string) error {
	columns, err := d.Columns()
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(columns))
	for _, column := range columns {
		present[strings.ToLower(column)] = true
	}

	var missing []string

	for _, required := range RequiredColumns {
		if !present[required] {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return errors.Newf(errors.ErrCodeMissingColumns,
			"input %s is missing required columns: %s", path, strings.Join(missing, ", "))
	}

	return nil
}

// Columns implements DataSource.
func (d *DuckDBDataSource) Columns() ([]string, error) {
	rows, err := d.db.Query(`SELECT name FROM pragma_table_info('bars')`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read bar schema", err)
	}
	defer rows.Close()

	var columns []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan column name", err)
		}

		columns = append(columns, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating columns", err)
	}

	return columns, nil
}

// ReadAll implements DataSource. Bars are yielded in ascending date order;
// rows with an unparseable date or empty close are dropped with a warning,
// matching the pre-cleaned input contract.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.RawBar, error) bool) {
	return func(yield func(types.RawBar, error) bool) {
		rows, err := d.db.Query(`SELECT * FROM bars ORDER BY date ASC`)
		if err != nil {
			yield(types.RawBar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err))

			return
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			yield(types.RawBar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read result columns", err))

			return
		}

		dropped := 0

		for rows.Next() {
			values := make([]sql.NullString, len(columns))
			scanTargets := make([]any, len(columns))

			for i := range values {
				scanTargets[i] = &values[i]
			}

			if err := rows.Scan(scanTargets...); err != nil {
				yield(types.RawBar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar row", err))

				return
			}

			raw, ok := buildRawBar(columns, values)
			if !ok {
				dropped++

				continue
			}

			if start.IsSome() && raw.Date.Before(start.Unwrap()) {
				continue
			}

			if end.IsSome() && raw.Date.After(end.Unwrap()) {
				continue
			}

			if !yield(raw, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.RawBar{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err))

			return
		}

		if dropped > 0 {
			d.logger.Warn("Dropped unusable bar rows",
				zap.Int("count", dropped),
			)
		}
	}
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0

	for _, err := range d.ReadAll(start, end) {
		if err != nil {
			return 0, err
		}

		count++
	}

	return count, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	return d.db.Close()
}
