package engine

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type CostTestSuite struct {
	suite.Suite
}

func TestCostSuite(t *testing.T) {
	suite.Run(t, new(CostTestSuite))
}

func (suite *CostTestSuite) TestApplySlippage() {
	tests := []struct {
		name     string
		price    float64
		bps      float64
		side     Side
		expected float64
	}{
		{name: "zero bps leaves buy unchanged", price: 100, bps: 0, side: SideBuy, expected: 100},
		{name: "zero bps leaves sell unchanged", price: 100, bps: 0, side: SideSell, expected: 100},
		{name: "negative bps leaves price unchanged", price: 100, bps: -5, side: SideBuy, expected: 100},
		{name: "buy executes higher", price: 100, bps: 10, side: SideBuy, expected: 100.1},
		{name: "sell executes lower", price: 100, bps: 10, side: SideSell, expected: 99.9},
		{name: "fifty bps buy", price: 200, bps: 50, side: SideBuy, expected: 201},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.expected, ApplySlippage(tc.price, tc.bps, tc.side), 1e-9)
		})
	}
}

func (suite *CostTestSuite) TestBuyCost() {
	suite.InDelta(1000.0, BuyCost(100, 10, 0), 1e-9)
	suite.InDelta(1001.425, BuyCost(100, 10, 0.001425), 1e-9)
}

func (suite *CostTestSuite) TestSellNet() {
	suite.InDelta(1000.0, SellNet(100, 10, 0, 0), 1e-9)

	// Fee and tax apply on gross notional independently.
	suite.InDelta(1000*(1-0.001425-0.003), SellNet(100, 10, 0.001425, 0.003), 1e-9)
}

func (suite *CostTestSuite) TestBuySellRoundTripCost() {
	// A flat round trip at the same price loses exactly fee+fee+tax on notional.
	buy := BuyCost(100, 10, 0.001425)
	sell := SellNet(100, 10, 0.001425, 0.003)

	suite.InDelta(1000*(0.001425+0.001425+0.003), buy-sell, 1e-9)
}
