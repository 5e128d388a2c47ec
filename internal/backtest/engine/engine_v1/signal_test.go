package engine

import (
	"testing"
	"time"

	"github.com/quantra-lab/barsim/internal/types"
	"github.com/stretchr/testify/suite"
)

type SignalTestSuite struct {
	suite.Suite
}

func TestSignalSuite(t *testing.T) {
	suite.Run(t, new(SignalTestSuite))
}

func rawBarAt(day int, close float64, extra map[string]string) types.RawBar {
	return types.RawBar{
		Date:  time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:  close,
		High:  close,
		Low:   close,
		Close: close,
		Extra: extra,
	}
}

func (suite *SignalTestSuite) TestHighestTruthyCountWins() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"buy_signal": "0", "entry_signal": "1"}),
		rawBarAt(2, 11, map[string]string{"buy_signal": "1", "entry_signal": "1"}),
		rawBarAt(3, 12, map[string]string{"buy_signal": "0", "entry_signal": "1"}),
	}

	bars, resolved := ResolveSignals(nil, raws)
	suite.Equal("entry_signal", resolved.Buy)

	suite.True(bars[0].BuySignal)
	suite.True(bars[1].BuySignal)
	suite.True(bars[2].BuySignal)
}

func (suite *SignalTestSuite) TestTieBreaksLexicographically() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"sell": "1", "exit": "0"}),
		rawBarAt(2, 11, map[string]string{"sell": "0", "exit": "1"}),
	}

	_, resolved := ResolveSignals(nil, raws)
	suite.Equal("exit", resolved.Sell)
}

func (suite *SignalTestSuite) TestAllZeroPrefersCanonical() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"buy_signal": "0", "entry": "0"}),
		rawBarAt(2, 11, map[string]string{"buy_signal": "0", "entry": "0"}),
	}

	_, resolved := ResolveSignals(nil, raws)
	suite.Equal(SignalColumnBuy, resolved.Buy)
}

func (suite *SignalTestSuite) TestAllZeroWithoutCanonicalKeepsBestName() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"entry": "0"}),
	}

	_, resolved := ResolveSignals(nil, raws)
	suite.Equal("entry", resolved.Buy)
}

func (suite *SignalTestSuite) TestMissingColumnsSynthesizeFalse() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{}),
		rawBarAt(2, 11, map[string]string{}),
	}

	bars, resolved := ResolveSignals(nil, raws)
	suite.Empty(resolved.Buy)
	suite.Empty(resolved.Sell)
	suite.Empty(resolved.Trend)

	for _, bar := range bars {
		suite.False(bar.BuySignal)
		suite.False(bar.SellSignal)
		suite.False(bar.TrendBreak)
	}
}

func (suite *SignalTestSuite) TestTrendBreakAliases() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"trend_exit": "true"}),
		rawBarAt(2, 11, map[string]string{"trend_exit": "false"}),
	}

	bars, resolved := ResolveSignals(nil, raws)
	suite.Equal("trend_exit", resolved.Trend)
	suite.True(bars[0].TrendBreak)
	suite.False(bars[1].TrendBreak)
}

func (suite *SignalTestSuite) TestTrendLevelParsed() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"trend_level": "9.5"}),
		rawBarAt(2, 11, map[string]string{"trend_level": "nan"}),
		rawBarAt(3, 12, map[string]string{}),
	}

	bars, _ := ResolveSignals(nil, raws)
	suite.Require().True(bars[0].TrendLevel.IsSome())
	suite.InDelta(9.5, bars[0].TrendLevel.Unwrap(), 1e-9)
	suite.True(bars[1].TrendLevel.IsNone())
	suite.True(bars[2].TrendLevel.IsNone())
}

func (suite *SignalTestSuite) TestRawValuesInterpretedNotMutated() {
	raws := []types.RawBar{
		rawBarAt(1, 10, map[string]string{"buy_signal": "True", "sell_signal": "yes", "trend_break": "2"}),
	}

	bars, _ := ResolveSignals(nil, raws)
	suite.True(bars[0].BuySignal)
	suite.True(bars[0].SellSignal)
	suite.True(bars[0].TrendBreak)
	suite.Equal("True", raws[0].Extra["buy_signal"])
}
