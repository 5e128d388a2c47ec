package engine

import (
	"context"
	"sort"

	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"github.com/quantra-lab/barsim/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepGrid is the cartesian parameter grid for a sweep: every stop-loss
// threshold is paired with every trailing-stop threshold.
type SweepGrid struct {
	StopLossPcts     []float64 `yaml:"stop_loss_pcts" json:"stop_loss_pcts"`
	TrailingStopPcts []float64 `yaml:"trailing_stop_pcts" json:"trailing_stop_pcts"`
}

// Size returns the number of grid cells.
func (g SweepGrid) Size() int {
	return len(g.StopLossPcts) * len(g.TrailingStopPcts)
}

// SweepRow is one grid cell's outcome.
type SweepRow struct {
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	TrailingStopPct   float64 `yaml:"trailing_stop_pct"`
	NumberOfTrades    int     `yaml:"number_of_trades"`
	WinRate           float64 `yaml:"win_rate"`
	ReturnPct         float64 `yaml:"return_pct"`
	MaxDrawdown       float64 `yaml:"max_drawdown"`
	EndEquity         float64 `yaml:"end_equity"`
	OpenPositionAtEnd bool    `yaml:"open_position_at_end"`
}

// RunSweep runs the grid over a shared, already-resolved bar sequence. Each
// cell folds its own EngineState, so cells run concurrently up to the given
// limit without sharing any mutable state. Rows come back sorted by
// (stop_loss_pct, trailing_stop_pct) regardless of completion order.
func RunSweep(
	ctx context.Context,
	log *logger.Logger,
	base BacktestEngineV1Config,
	bars []types.Bar,
	grid SweepGrid,
	concurrency int,
) ([]SweepRow, error) {
	if grid.Size() == 0 {
		return nil, errors.New(errors.ErrCodeSweepEmptyGrid, "sweep grid has no cells")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	rows := make([]SweepRow, grid.Size())

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, stopLossPct := range grid.StopLossPcts {
		for j, trailingStopPct := range grid.TrailingStopPcts {
			index := i*len(grid.TrailingStopPcts) + j
			stopLossPct := stopLossPct
			trailingStopPct := trailingStopPct

			group.Go(func() error {
				if err := ctx.Err(); err != nil {
					return errors.Wrap(errors.ErrCodeSweepRunFailed, "sweep cancelled", err)
				}

				cfg := base
				cfg.StopLossPct = stopLossPct
				cfg.TrailingStopPct = trailingStopPct

				if err := cfg.Validate(); err != nil {
					return errors.Wrapf(errors.ErrCodeSweepRunFailed, err,
						"invalid sweep cell stop_loss_pct=%v trailing_stop_pct=%v", stopLossPct, trailingStopPct)
				}

				state := NewEngineState(&cfg, nil)
				for _, bar := range bars {
					state.Step(bar)
				}

				tradeResult := ComputeTradeResult(state.Trades())
				equityResult := ComputeEquityResult(state.Equity())

				rows[index] = SweepRow{
					StopLossPct:       stopLossPct,
					TrailingStopPct:   trailingStopPct,
					NumberOfTrades:    tradeResult.NumberOfTrades,
					WinRate:           tradeResult.WinRate,
					ReturnPct:         types.RoundOutput(equityResult.ReturnPct),
					MaxDrawdown:       types.RoundOutput(equityResult.MaxDrawdown),
					EndEquity:         equityResult.EndEquity,
					OpenPositionAtEnd: state.OpenPosition().IsSome(),
				}

				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].StopLossPct != rows[b].StopLossPct {
			return rows[a].StopLossPct < rows[b].StopLossPct
		}

		return rows[a].TrailingStopPct < rows[b].TrailingStopPct
	})

	if log != nil {
		log.Info("Sweep finished",
			zap.Int("cells", len(rows)),
			zap.Int("concurrency", concurrency),
		)
	}

	return rows, nil
}
