package engine

import (
	"math"
	"testing"
	"time"

	"github.com/quantra-lab/barsim/internal/types"
	"github.com/stretchr/testify/suite"
)

// barAt builds a flat bar on the given January 2024 day where open, high and
// low all equal the close. Tests mutate the fields they care about.
func barAt(day int, close float64) types.Bar {
	return types.Bar{
		Date:  time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:  close,
		High:  close,
		Low:   close,
		Close: close,
	}
}

func buyBarAt(day int, close float64) types.Bar {
	bar := barAt(day, close)
	bar.BuySignal = true

	return bar
}

func sellBarAt(day int, close float64) types.Bar {
	bar := barAt(day, close)
	bar.SellSignal = true

	return bar
}

type MachineTestSuite struct {
	suite.Suite
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineTestSuite))
}

func (suite *MachineTestSuite) run(cfg BacktestEngineV1Config, bars []types.Bar) *EngineState {
	state := NewEngineState(&cfg, nil)
	for _, bar := range bars {
		state.Step(bar)
	}

	return state
}

func (suite *MachineTestSuite) TestSignalRoundTrip() {
	cfg := TestConfig(1000)

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		barAt(2, 12),
		sellBarAt(3, 11),
	})

	suite.Require().Len(state.Trades(), 1)

	trade := state.Trades()[0]
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), trade.EntryDate)
	suite.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), trade.ExitDate)
	suite.InDelta(10.0, trade.EntryPrice, 1e-9)
	suite.InDelta(11.0, trade.ExitPrice, 1e-9)
	suite.Equal(int64(100), trade.Shares)
	suite.InDelta(100.0, trade.GrossPnL, 1e-9)
	suite.InDelta(1100.0, trade.NetCashflowExit, 1e-9)
	suite.InDelta(0.1, trade.ReturnPct, 1e-9)
	suite.Equal(types.ExitReasonSignal, trade.ExitReason)

	suite.InDelta(1100.0, state.Cash(), 1e-9)
	suite.True(state.OpenPosition().IsNone())
}

func (suite *MachineTestSuite) TestOneEquityPointPerBar() {
	cfg := TestConfig(1000)

	bars := []types.Bar{
		buyBarAt(1, 10),
		barAt(2, math.NaN()),
		barAt(3, 12),
		sellBarAt(4, 11),
		barAt(5, 9),
	}

	state := suite.run(cfg, bars)
	suite.Len(state.Equity(), len(bars))
}

func (suite *MachineTestSuite) TestEquityMarksOpenPositionToClose() {
	cfg := TestConfig(1000)

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		barAt(2, 12),
	})

	equity := state.Equity()
	suite.Require().Len(equity, 2)

	suite.InDelta(1000.0, equity[0].Equity, 1e-9)
	suite.Equal(1, equity[0].PositionFlag)
	suite.Equal(int64(100), equity[0].Shares)

	suite.InDelta(1200.0, equity[1].Equity, 1e-9)
	suite.InDelta(0.0, equity[1].Cash, 1e-9)
}

func (suite *MachineTestSuite) TestNaNCloseSnapshotCarriesCashOnly() {
	cfg := TestConfig(1000)

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		barAt(2, math.NaN()),
	})

	equity := state.Equity()
	suite.Require().Len(equity, 2)

	// The position stays open, but an unpriceable bar marks cash alone.
	suite.True(state.OpenPosition().IsSome())
	suite.Equal(0, equity[1].PositionFlag)
	suite.InDelta(0.0, equity[1].Equity, 1e-9)
}

func (suite *MachineTestSuite) TestEntrySkippedOnNaNClose() {
	cfg := TestConfig(1000)

	bar := barAt(1, math.NaN())
	bar.BuySignal = true

	state := suite.run(cfg, []types.Bar{bar})
	suite.True(state.OpenPosition().IsNone())
	suite.InDelta(1000.0, state.Cash(), 1e-9)
}

func (suite *MachineTestSuite) TestEntrySkippedWhenUnaffordable() {
	cfg := TestConfig(5)

	state := suite.run(cfg, []types.Bar{buyBarAt(1, 10)})
	suite.True(state.OpenPosition().IsNone())
	suite.InDelta(5.0, state.Cash(), 1e-9)
	suite.Empty(state.Trades())
}

func (suite *MachineTestSuite) TestSinglePositionInvariant() {
	cfg := TestConfig(1000)

	// A second buy signal while open is ignored; shares never pyramid.
	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		buyBarAt(2, 5),
		buyBarAt(3, 4),
	})

	suite.Require().True(state.OpenPosition().IsSome())
	suite.Equal(int64(100), state.OpenPosition().Unwrap().Shares)
	suite.Empty(state.Trades())
}

func (suite *MachineTestSuite) TestExitSkippedOnNaNCloseButReasonRecorded() {
	cfg := TestConfig(1000)

	nanSell := barAt(2, math.NaN())
	nanSell.SellSignal = true

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		nanSell,
		sellBarAt(3, 11),
	})

	// The unpriceable sell leaves the position open; the reason still shows
	// on that bar's equity point. The next priced sell closes it.
	suite.Require().Len(state.Trades(), 1)
	suite.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), state.Trades()[0].ExitDate)

	equity := state.Equity()
	suite.Equal(types.ExitReasonSignal, equity[1].ExitReasonToday)
	suite.Equal(types.ExitReasonSignal, equity[2].ExitReasonToday)
}

func (suite *MachineTestSuite) TestStopLossExit() {
	cfg := TestConfig(1000)
	cfg.StopLossPct = 0.05

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 100),
		barAt(2, 94),
	})

	suite.Require().Len(state.Trades(), 1)
	suite.Equal(types.ExitReasonStopLossClose, state.Trades()[0].ExitReason)
	suite.InDelta(94.0, state.Trades()[0].ExitPrice, 1e-9)
}

func (suite *MachineTestSuite) TestTrailingStopExit() {
	cfg := TestConfig(1000)
	cfg.TrailingStopPct = 0.10

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 100),
		barAt(2, 120),
		barAt(3, 107),
	})

	suite.Require().Len(state.Trades(), 1)

	trade := state.Trades()[0]
	suite.Equal(types.ExitReasonTrailingClose, trade.ExitReason)
	suite.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), trade.ExitDate)
	suite.InDelta(107.0, trade.ExitPrice, 1e-9)
}

func (suite *MachineTestSuite) TestCooldownBlocksReentry() {
	cfg := TestConfig(1000)
	cfg.CooldownBars = 3

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10), // entry
		sellBarAt(2, 10), // exit, cooldown = 3
		buyBarAt(3, 10), // cooldown 2, blocked
		buyBarAt(4, 10), // cooldown 1, blocked
		buyBarAt(5, 10), // cooldown 0, entry allowed
	})

	suite.Require().Len(state.Trades(), 1)
	suite.Require().True(state.OpenPosition().IsSome())
	suite.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), state.OpenPosition().Unwrap().EntryDate)
}

func (suite *MachineTestSuite) TestSameBarReentryWithoutCooldown() {
	cfg := TestConfig(1000)

	bar := barAt(2, 10)
	bar.SellSignal = true
	bar.BuySignal = true

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		bar,
	})

	// Exit and re-entry on the same bar when no cooldown is configured.
	suite.Require().Len(state.Trades(), 1)
	suite.True(state.OpenPosition().IsSome())
}

func (suite *MachineTestSuite) TestCashConservationWithFees() {
	cfg := DefaultConfig()
	cfg.InitialCash = 1_000_000

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 334),
		barAt(2, 340),
		sellBarAt(3, 350),
	})

	suite.Require().Len(state.Trades(), 1)

	// Every dollar is accounted for: cash out, proceeds in, fees in between.
	shares := state.Trades()[0].Shares
	buyCost := BuyCost(shares, 334, cfg.BuyFeeRate)
	sellNet := SellNet(shares, 350, cfg.SellFeeRate, cfg.SellTaxRate)

	suite.InDelta(cfg.InitialCash-buyCost+sellNet, state.Cash(), 1e-6)

	expectedFees := float64(shares)*334*cfg.BuyFeeRate + float64(shares)*350*(cfg.SellFeeRate+cfg.SellTaxRate)
	suite.InDelta(expectedFees, state.FeesPaid(), 1e-6)
}

func (suite *MachineTestSuite) TestSlippageWorksAgainstTrader() {
	cfg := TestConfig(1000)
	cfg.SlippageBps = 10

	state := suite.run(cfg, []types.Bar{
		buyBarAt(1, 10),
		sellBarAt(2, 10),
	})

	suite.Require().Len(state.Trades(), 1)

	trade := state.Trades()[0]
	suite.InDelta(10.01, trade.EntryPrice, 1e-9)
	suite.InDelta(9.99, trade.ExitPrice, 1e-9)
	suite.Negative(trade.GrossPnL)
}

func (suite *MachineTestSuite) TestDeterministicReplay() {
	cfg := DefaultConfig()
	cfg.InitialCash = 500_000
	cfg.StopLossPct = 0.05
	cfg.TrailingStopPct = 0.08
	cfg.CooldownBars = 2

	bars := []types.Bar{
		buyBarAt(1, 100),
		barAt(2, 110),
		barAt(3, 95),
		buyBarAt(4, 90),
		barAt(5, 120),
		sellBarAt(6, 118),
		barAt(7, 118),
		buyBarAt(8, 110),
		barAt(9, 130),
	}

	first := suite.run(cfg, bars)
	second := suite.run(cfg, bars)

	suite.Equal(first.Trades(), second.Trades())
	suite.Equal(first.Equity(), second.Equity())
	suite.InDelta(first.Cash(), second.Cash(), 0)

	// Every snapshot is internally consistent: equity equals cash plus the
	// marked position value.
	for i, point := range first.Equity() {
		if point.PositionFlag == 1 {
			suite.InDelta(point.Cash+float64(point.Shares)*bars[i].Close, point.Equity, 1e-6)
		} else {
			suite.InDelta(point.Cash, point.Equity, 1e-6)
		}
	}
}
