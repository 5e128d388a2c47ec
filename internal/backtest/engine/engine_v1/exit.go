package engine

import (
	"math"

	"github.com/quantra-lab/barsim/internal/types"
)

// evaluateExit decides whether the open position should close on this bar and
// why. Conditions are checked in a fixed precedence and the first match wins,
// so a single unambiguous reason is recorded even when several conditions
// trigger at once:
//
//  1. stop-loss
//  2. trailing-stop
//  3. take-profit
//  4. trend-break (when exit mode is both or trend)
//  5. signal      (when exit mode is both or signal)
//
// Risk control outranks discretionary signals: a bar where both the stop-loss
// and the sell signal fire records the stop-loss.
func evaluateExit(cfg *BacktestEngineV1Config, pos *Position, bar types.Bar) (types.ExitReason, bool) {
	if pos == nil {
		return types.ExitReasonNone, false
	}

	if cfg.StopLossPct > 0 && pos.StopLevel > 0 {
		mark := stopMarkPrice(cfg, bar)
		if !math.IsNaN(mark) && mark <= pos.StopLevel {
			if cfg.StopLossMode == StopModeLow {
				return types.ExitReasonStopLossLow, true
			}

			return types.ExitReasonStopLossClose, true
		}
	}

	if cfg.TrailingStopPct > 0 && pos.TrailLevel > 0 {
		mark := trailMarkPrice(cfg, bar)
		if !math.IsNaN(mark) && mark <= pos.TrailLevel {
			if cfg.TrailingMode == TrailModeLow {
				return types.ExitReasonTrailingLow, true
			}

			return types.ExitReasonTrailingClose, true
		}
	}

	if cfg.TakeProfitPct > 0 {
		if !math.IsNaN(bar.Close) && bar.Close >= pos.EntryPrice*(1+cfg.TakeProfitPct) {
			return types.ExitReasonTakeProfit, true
		}
	}

	if (cfg.ExitMode == ExitModeBoth || cfg.ExitMode == ExitModeTrend) && bar.TrendBreak {
		return types.ExitReasonTrendBreak, true
	}

	if (cfg.ExitMode == ExitModeBoth || cfg.ExitMode == ExitModeSignal) && bar.SellSignal {
		return types.ExitReasonSignal, true
	}

	return types.ExitReasonNone, false
}
