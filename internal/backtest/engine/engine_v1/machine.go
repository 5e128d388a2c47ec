package engine

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"go.uber.org/zap"
)

// EngineState is the single mutable accumulator for one backtest run: cash,
// the optional open position, the cooldown counter, the trade ledger and the
// equity curve. Each run owns exactly one EngineState and nothing is shared,
// so independent runs can execute in parallel without coordination.
type EngineState struct {
	cfg      *BacktestEngineV1Config
	log      *logger.Logger
	cash     float64
	pos      *Position
	cooldown int
	feesPaid float64
	trades   []types.TradeRecord
	equity   []types.EquityPoint
}

// NewEngineState creates a fresh accumulator: flat, zero cooldown, cash at
// the configured starting balance.
func NewEngineState(cfg *BacktestEngineV1Config, log *logger.Logger) *EngineState {
	return &EngineState{
		cfg:      cfg,
		log:      log,
		cash:     cfg.InitialCash,
		pos:      nil,
		cooldown: 0,
		feesPaid: 0,
		trades:   nil,
		equity:   nil,
	}
}

// Step processes one bar, strictly in this order:
//
//	(a) decrement the cooldown counter if flat and counting
//	(b) if open: refresh risk lines, evaluate exit, execute the close
//	(c) if flat and cooldown elapsed: evaluate entry
//	(d) snapshot equity from the post-transition state
//
// Exactly one equity point is appended per call, whatever happens in between.
func (s *EngineState) Step(bar types.Bar) {
	exitReason := types.ExitReasonNone

	if s.cooldown > 0 && s.pos == nil {
		s.cooldown--
	}

	if s.pos != nil {
		refreshRiskLines(s.cfg, s.pos, bar)

		if reason, ok := evaluateExit(s.cfg, s.pos, bar); ok {
			exitReason = reason

			s.closePosition(bar, reason)
		}
	}

	if s.pos == nil && s.cooldown == 0 && bar.BuySignal {
		s.openPosition(bar)
	}

	s.snapshot(bar, exitReason)
}

// openPosition attempts an entry at the bar's close. A bar without an
// actionable close is skipped; an affordable share count of zero is an
// economic non-event, not an error.
func (s *EngineState) openPosition(bar types.Bar) {
	if !bar.UsableClose() {
		return
	}

	execPrice := ApplySlippage(bar.Close, s.cfg.SlippageBps, SideBuy)

	shares := affordableShares(s.cash, execPrice, s.cfg.BuyFeeRate)
	if shares <= 0 {
		return
	}

	cost := BuyCost(shares, execPrice, s.cfg.BuyFeeRate)
	s.cash -= cost
	s.feesPaid += float64(shares) * execPrice * s.cfg.BuyFeeRate

	// Seed the watermark from the entry bar's trailing reference so the first
	// trailing check on a later bar has a sane baseline.
	trailRef := trailMarkPrice(s.cfg, bar)
	if math.IsNaN(trailRef) || trailRef <= 0 {
		trailRef = execPrice
	}

	s.pos = &Position{
		EntryDate:       bar.Date,
		EntryPrice:      execPrice,
		Shares:          shares,
		EntryCashUsed:   cost,
		StopLevel:       0,
		TrailLevel:      0,
		MaxFavorableRef: trailRef,
	}

	refreshRiskLines(s.cfg, s.pos, bar)

	s.cooldown = 0

	if s.log != nil {
		s.log.Debug("Position opened",
			zap.Time("date", bar.Date),
			zap.Float64("exec_price", execPrice),
			zap.Int64("shares", shares),
			zap.Float64("cash", s.cash),
		)
	}
}

// closePosition executes the exit at the bar's close and emits the trade
// record. If the close is not an actionable price the exit is skipped and the
// position stays open; the reason is still surfaced in that bar's equity
// point.
func (s *EngineState) closePosition(bar types.Bar, reason types.ExitReason) {
	if s.pos == nil || !bar.UsableClose() {
		return
	}

	execPrice := ApplySlippage(bar.Close, s.cfg.SlippageBps, SideSell)

	gross := float64(s.pos.Shares) * execPrice
	net := SellNet(s.pos.Shares, execPrice, s.cfg.SellFeeRate, s.cfg.SellTaxRate)
	s.feesPaid += gross - net
	s.cash += net

	s.trades = append(s.trades, types.TradeRecord{
		EntryDate:       s.pos.EntryDate,
		ExitDate:        bar.Date,
		EntryPrice:      types.RoundOutput(s.pos.EntryPrice),
		ExitPrice:       types.RoundOutput(execPrice),
		Shares:          s.pos.Shares,
		GrossPnL:        types.RoundOutput((execPrice - s.pos.EntryPrice) * float64(s.pos.Shares)),
		NetCashflowExit: types.RoundOutput(s.cash),
		ReturnPct:       execPrice/s.pos.EntryPrice - 1,
		ExitReason:      reason,
	})

	if s.log != nil {
		s.log.Debug("Position closed",
			zap.Time("date", bar.Date),
			zap.Float64("exec_price", execPrice),
			zap.String("reason", string(reason)),
			zap.Float64("cash", s.cash),
		)
	}

	s.pos = nil
	s.cooldown = s.cfg.CooldownBars
}

// snapshot appends the bar's equity point from the post-transition state.
// An open position is marked to the bar's close; when the close is NaN the
// snapshot carries the cash balance alone.
func (s *EngineState) snapshot(bar types.Bar, exitReason types.ExitReason) {
	point := types.EquityPoint{
		Date:            bar.Date,
		Equity:          types.RoundOutput(s.cash),
		Cash:            types.RoundOutput(s.cash),
		PositionFlag:    0,
		Shares:          0,
		EntryPrice:      0,
		StopLevel:       0,
		TrailLevel:      0,
		ExitReasonToday: exitReason,
	}

	if s.pos != nil && !math.IsNaN(bar.Close) {
		point.Equity = types.RoundOutput(s.cash + float64(s.pos.Shares)*bar.Close)
		point.PositionFlag = 1
		point.Shares = s.pos.Shares
		point.EntryPrice = types.RoundOutput(s.pos.EntryPrice)
		point.StopLevel = types.RoundOutput(s.pos.StopLevel)
		point.TrailLevel = types.RoundOutput(s.pos.TrailLevel)
	}

	s.equity = append(s.equity, point)
}

// Trades returns the closed-trade ledger in execution order.
func (s *EngineState) Trades() []types.TradeRecord {
	return s.trades
}

// Equity returns the per-bar equity curve; its length always equals the
// number of bars stepped.
func (s *EngineState) Equity() []types.EquityPoint {
	return s.equity
}

// Cash returns the current cash balance.
func (s *EngineState) Cash() float64 {
	return s.cash
}

// FeesPaid returns the cumulative fees and tax paid so far.
func (s *EngineState) FeesPaid() float64 {
	return s.feesPaid
}

// OpenPosition returns a copy of the open position, if any.
func (s *EngineState) OpenPosition() optional.Option[Position] {
	if s.pos == nil {
		return optional.None[Position]()
	}

	return optional.Some(*s.pos)
}
