package engine

import (
	"math"
	"time"

	"github.com/quantra-lab/barsim/internal/types"
)

// Position is the single open lot. At most one exists at any time; it is
// owned exclusively by the engine state and never shared. Shares and entry
// price are immutable after creation; only the risk lines and the watermark
// move while the position is open.
type Position struct {
	EntryDate     time.Time
	EntryPrice    float64
	Shares        int64
	EntryCashUsed float64

	// StopLevel is anchored to the entry price and constant for the life of
	// the position. 0 means disabled.
	StopLevel float64
	// TrailLevel can only rise or stay level because MaxFavorableRef is
	// non-decreasing. 0 means disabled.
	TrailLevel float64
	// MaxFavorableRef is the running maximum of the trailing reference price
	// since entry.
	MaxFavorableRef float64
}

// stopMarkPrice returns the mark price used for the stop-loss check.
func stopMarkPrice(cfg *BacktestEngineV1Config, bar types.Bar) float64 {
	if cfg.StopLossMode == StopModeLow {
		return bar.Low
	}

	return bar.Close
}

// trailMarkPrice returns the mark price used for the trailing watermark and
// the trailing-stop check.
func trailMarkPrice(cfg *BacktestEngineV1Config, bar types.Bar) float64 {
	if cfg.TrailingMode == TrailModeLow {
		return bar.Low
	}

	return bar.Close
}

// refreshRiskLines recomputes the position's stop and trailing lines for the
// bar. It runs on every open bar, before exit evaluation. A NaN trailing
// reference leaves the watermark unchanged.
func refreshRiskLines(cfg *BacktestEngineV1Config, pos *Position, bar types.Bar) {
	if pos == nil {
		return
	}

	if cfg.StopLossPct > 0 {
		pos.StopLevel = pos.EntryPrice * (1 - cfg.StopLossPct)
	} else {
		pos.StopLevel = 0
	}

	if cfg.TrailingStopPct > 0 {
		ref := trailMarkPrice(cfg, bar)
		if !math.IsNaN(ref) {
			pos.MaxFavorableRef = math.Max(pos.MaxFavorableRef, ref)
		}

		pos.TrailLevel = pos.MaxFavorableRef * (1 - cfg.TrailingStopPct)
	} else {
		pos.TrailLevel = 0
	}
}
