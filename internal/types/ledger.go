package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ExitReason identifies which rule closed a position. Exactly one reason is
// recorded per exit even when several conditions trigger on the same bar.
type ExitReason string

const (
	ExitReasonNone          ExitReason = ""
	ExitReasonStopLossClose ExitReason = "stop_loss_close"
	ExitReasonStopLossLow   ExitReason = "stop_loss_low"
	ExitReasonTrailingClose ExitReason = "trailing_stop_close"
	ExitReasonTrailingLow   ExitReason = "trailing_stop_low"
	ExitReasonTakeProfit    ExitReason = "take_profit"
	ExitReasonTrendBreak    ExitReason = "trend_break"
	ExitReasonSignal        ExitReason = "signal"
)

// TradeRecord is an immutable record of one closed round trip. It is created
// exactly once, at the instant the exit executes, and never mutated.
type TradeRecord struct {
	EntryDate  time.Time `csv:"entry_date"`
	ExitDate   time.Time `csv:"exit_date"`
	EntryPrice float64   `csv:"entry_price"`
	ExitPrice  float64   `csv:"exit_price"`
	Shares     int64     `csv:"shares"`
	GrossPnL   float64   `csv:"gross_pnl"`
	// NetCashflowExit is the full cash balance right after the exit proceeds
	// landed, net of fees and tax.
	NetCashflowExit float64    `csv:"net_cashflow_exit"`
	ReturnPct       float64    `csv:"return_pct"`
	ExitReason      ExitReason `csv:"exit_reason"`
}

// EquityPoint is one per-bar snapshot of the engine state after that bar's
// transitions. One is emitted for every input bar, no exceptions.
type EquityPoint struct {
	Date         time.Time `csv:"date"`
	Equity       float64   `csv:"equity"`
	Cash         float64   `csv:"cash"`
	PositionFlag int       `csv:"position"`
	Shares       int64     `csv:"shares"`
	EntryPrice   float64   `csv:"entry_price"`
	StopLevel    float64   `csv:"stop_level"`
	TrailLevel   float64   `csv:"trail_level"`
	// ExitReasonToday is empty unless an exit condition fired on this bar.
	ExitReasonToday ExitReason `csv:"exit_reason_today"`
}

// RoundOutput rounds a value to the 6 decimal places used in all ledger and
// equity output fields.
func RoundOutput(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}

	return decimal.NewFromFloat(v).Round(6).InexactFloat64()
}
