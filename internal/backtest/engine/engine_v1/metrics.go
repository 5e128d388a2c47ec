package engine

import (
	"github.com/quantra-lab/barsim/internal/types"
)

// ComputeEquityResult summarizes an equity curve: start/end values, total
// return, and maximum peak-to-trough drawdown as a fraction of the peak.
func ComputeEquityResult(equity []types.EquityPoint) types.EquityResult {
	if len(equity) == 0 {
		return types.EquityResult{
			StartEquity: 0,
			EndEquity:   0,
			ReturnPct:   0,
			MaxDrawdown: 0,
		}
	}

	start := equity[0].Equity
	end := equity[len(equity)-1].Equity

	returnPct := 0.0
	if start != 0 {
		returnPct = end/start - 1
	}

	peak := start
	maxDrawdown := 0.0

	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}

		if peak != 0 {
			if dd := (peak - point.Equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return types.EquityResult{
		StartEquity: start,
		EndEquity:   end,
		ReturnPct:   returnPct,
		MaxDrawdown: maxDrawdown,
	}
}

// ComputeTradeResult summarizes the closed-trade ledger. Trades with zero
// gross pnl count as neither winning nor losing.
func ComputeTradeResult(trades []types.TradeRecord) types.TradeResult {
	result := types.TradeResult{
		NumberOfTrades:        len(trades),
		NumberOfWinningTrades: 0,
		NumberOfLosingTrades:  0,
		WinRate:               0,
	}

	for _, trade := range trades {
		switch {
		case trade.GrossPnL > 0:
			result.NumberOfWinningTrades++
		case trade.GrossPnL < 0:
			result.NumberOfLosingTrades++
		}
	}

	if result.NumberOfTrades > 0 {
		result.WinRate = float64(result.NumberOfWinningTrades) / float64(result.NumberOfTrades)
	}

	return result
}
