package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"github.com/quantra-lab/barsim/pkg/errors"
	"go.uber.org/zap"
)

// BacktestState persists finished runs: the trade ledger and the equity curve
// land in DuckDB tables keyed by run id, and are exported to CSV and Parquet
// for the reporting layer.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

func NewBacktestState(log *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to open state database", err)
	}

	return &BacktestState{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the tables for tracking trades and equity points.
func (b *BacktestState) Initialize() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT,
			entry_date TIMESTAMP,
			exit_date TIMESTAMP,
			entry_price DOUBLE,
			exit_price DOUBLE,
			shares BIGINT,
			gross_pnl DOUBLE,
			net_cashflow_exit DOUBLE,
			return_pct DOUBLE,
			exit_reason TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create trades table", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT,
			date TIMESTAMP,
			equity DOUBLE,
			cash DOUBLE,
			position INTEGER,
			shares BIGINT,
			entry_price DOUBLE,
			stop_level DOUBLE,
			trail_level DOUBLE,
			exit_reason_today TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create equity table", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS sweep (
			run_id TEXT,
			stop_loss_pct DOUBLE,
			trailing_stop_pct DOUBLE,
			number_of_trades INTEGER,
			win_rate DOUBLE,
			return_pct DOUBLE,
			max_drawdown DOUBLE,
			end_equity DOUBLE,
			open_position_at_end BOOLEAN
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create sweep table", err)
	}

	return nil
}

// RecordSweep stores a sweep's grid results under one run id.
func (b *BacktestState) RecordSweep(runID string, rows []SweepRow) error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to begin transaction", err)
	}

	for _, row := range rows {
		insert := b.sq.
			Insert("sweep").
			Columns(
				"run_id", "stop_loss_pct", "trailing_stop_pct", "number_of_trades",
				"win_rate", "return_pct", "max_drawdown", "end_equity", "open_position_at_end",
			).
			Values(
				runID, row.StopLossPct, row.TrailingStopPct, row.NumberOfTrades,
				row.WinRate, row.ReturnPct, row.MaxDrawdown, row.EndEquity, row.OpenPositionAtEnd,
			).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to insert sweep row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to commit sweep", err)
	}

	return nil
}

// WriteSweep exports a sweep's grid results to CSV and Parquet files in the
// given directory.
func (b *BacktestState) WriteSweep(path string, runID string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create results directory", err)
	}

	// Using raw SQL as Squirrel doesn't support COPY.
	selectStmt := fmt.Sprintf(
		`SELECT * EXCLUDE (run_id) FROM sweep WHERE run_id = '%s' ORDER BY stop_loss_pct ASC, trailing_stop_pct ASC`,
		runID,
	)

	csvPath := filepath.Join(path, "sweep.csv")
	if _, err := b.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT CSV, HEADER)`, selectStmt, csvPath)); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to export sweep to CSV", err)
	}

	parquetPath := filepath.Join(path, "sweep.parquet")
	if _, err := b.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET)`, selectStmt, parquetPath)); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to export sweep to Parquet", err)
	}

	b.logger.Info("Exported sweep results",
		zap.String("run_id", runID),
		zap.String("path", path),
	)

	return nil
}

// RecordRun stores one finished run's ledger and equity curve.
func (b *BacktestState) RecordRun(runID string, trades []types.TradeRecord, equity []types.EquityPoint) error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to begin transaction", err)
	}

	for _, trade := range trades {
		insert := b.sq.
			Insert("trades").
			Columns(
				"run_id", "entry_date", "exit_date", "entry_price", "exit_price",
				"shares", "gross_pnl", "net_cashflow_exit", "return_pct", "exit_reason",
			).
			Values(
				runID, trade.EntryDate, trade.ExitDate, trade.EntryPrice, trade.ExitPrice,
				trade.Shares, trade.GrossPnL, trade.NetCashflowExit, trade.ReturnPct, string(trade.ExitReason),
			).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to insert trade", err)
		}
	}

	for _, point := range equity {
		insert := b.sq.
			Insert("equity").
			Columns(
				"run_id", "date", "equity", "cash", "position",
				"shares", "entry_price", "stop_level", "trail_level", "exit_reason_today",
			).
			Values(
				runID, point.Date, point.Equity, point.Cash, point.PositionFlag,
				point.Shares, point.EntryPrice, point.StopLevel, point.TrailLevel, string(point.ExitReasonToday),
			).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to insert equity point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to commit run", err)
	}

	b.logger.Debug("Run recorded",
		zap.String("run_id", runID),
		zap.Int("trades", len(trades)),
		zap.Int("equity_points", len(equity)),
	)

	return nil
}

// GetTrades returns a run's trades in execution order.
func (b *BacktestState) GetTrades(runID string) ([]types.TradeRecord, error) {
	query := b.sq.
		Select(
			"entry_date", "exit_date", "entry_price", "exit_price",
			"shares", "gross_pnl", "net_cashflow_exit", "return_pct", "exit_reason",
		).
		From("trades").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("exit_date ASC").
		RunWith(b.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []types.TradeRecord

	for rows.Next() {
		var trade types.TradeRecord

		var reason string

		err := rows.Scan(
			&trade.EntryDate,
			&trade.ExitDate,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Shares,
			&trade.GrossPnL,
			&trade.NetCashflowExit,
			&trade.ReturnPct,
			&reason,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		trade.ExitReason = types.ExitReason(reason)
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating trades", err)
	}

	return trades, nil
}

// GetEquity returns a run's equity curve in date order.
func (b *BacktestState) GetEquity(runID string) ([]types.EquityPoint, error) {
	query := b.sq.
		Select(
			"date", "equity", "cash", "position",
			"shares", "entry_price", "stop_level", "trail_level", "exit_reason_today",
		).
		From("equity").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("date ASC").
		RunWith(b.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query equity", err)
	}
	defer rows.Close()

	var equity []types.EquityPoint

	for rows.Next() {
		var point types.EquityPoint

		var reason string

		err := rows.Scan(
			&point.Date,
			&point.Equity,
			&point.Cash,
			&point.PositionFlag,
			&point.Shares,
			&point.EntryPrice,
			&point.StopLevel,
			&point.TrailLevel,
			&reason,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan equity point", err)
		}

		point.ExitReasonToday = types.ExitReason(reason)
		equity = append(equity, point)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating equity", err)
	}

	return equity, nil
}

// Stats summarizes a recorded run: the trade tally comes straight from SQL
// aggregates, the equity summary from folding the stored curve.
func (b *BacktestState) Stats(runID string) (types.TradeResult, types.EquityResult, error) {
	query := b.sq.
		Select(
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE gross_pnl > 0)",
			"COUNT(*) FILTER (WHERE gross_pnl < 0)",
		).
		From("trades").
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(b.db)

	var tradeResult types.TradeResult

	err := query.QueryRow().Scan(
		&tradeResult.NumberOfTrades,
		&tradeResult.NumberOfWinningTrades,
		&tradeResult.NumberOfLosingTrades,
	)
	if err != nil {
		return types.TradeResult{}, types.EquityResult{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to aggregate trades", err)
	}

	if tradeResult.NumberOfTrades > 0 {
		tradeResult.WinRate = float64(tradeResult.NumberOfWinningTrades) / float64(tradeResult.NumberOfTrades)
	}

	equity, err := b.GetEquity(runID)
	if err != nil {
		return types.TradeResult{}, types.EquityResult{}, err
	}

	return tradeResult, ComputeEquityResult(equity), nil
}

// Write exports a run's trades and equity curve to CSV and Parquet files in
// the given directory.
func (b *BacktestState) Write(path string, runID string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create results directory", err)
	}

	exports := []struct {
		table   string
		orderBy string
	}{
		{table: "trades", orderBy: "exit_date"},
		{table: "equity", orderBy: "date"},
	}

	for _, export := range exports {
		// Using raw SQL as Squirrel doesn't support COPY.
		selectStmt := fmt.Sprintf(
			`SELECT * EXCLUDE (run_id) FROM %s WHERE run_id = '%s' ORDER BY %s ASC`,
			export.table, runID, export.orderBy,
		)

		csvPath := filepath.Join(path, export.table+".csv")
		if _, err := b.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT CSV, HEADER)`, selectStmt, csvPath)); err != nil {
			return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to export %s to CSV", export.table)
		}

		parquetPath := filepath.Join(path, export.table+".parquet")
		if _, err := b.db.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET)`, selectStmt, parquetPath)); err != nil {
			return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to export %s to Parquet", export.table)
		}
	}

	b.logger.Info("Exported backtest results",
		zap.String("run_id", runID),
		zap.String("path", path),
	)

	return nil
}

// Cleanup resets the database state.
func (b *BacktestState) Cleanup() error {
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS equity;
		DROP TABLE IF EXISTS sweep;
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to cleanup tables", err)
	}

	return b.Initialize()
}

// Close releases the underlying database.
func (b *BacktestState) Close() error {
	return b.db.Close()
}
