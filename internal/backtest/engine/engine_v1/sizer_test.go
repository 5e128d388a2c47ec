package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
)

type SizerTestSuite struct {
	suite.Suite
}

func TestSizerSuite(t *testing.T) {
	suite.Run(t, new(SizerTestSuite))
}

func (suite *SizerTestSuite) TestAffordableShares() {
	tests := []struct {
		name     string
		cash     float64
		price    float64
		feeRate  float64
		expected int64
	}{
		{name: "exact multiple without fee", cash: 1000, price: 10, feeRate: 0, expected: 100},
		{name: "fee reduces share count", cash: 1000, price: 10, feeRate: 0.001425, expected: 99},
		{name: "fractional shares floored", cash: 105, price: 10, feeRate: 0, expected: 10},
		{name: "cash below one share", cash: 5, price: 10, feeRate: 0, expected: 0},
		{name: "zero cash", cash: 0, price: 10, feeRate: 0, expected: 0},
		{name: "negative cash", cash: -100, price: 10, feeRate: 0, expected: 0},
		{name: "zero price", cash: 1000, price: 0, feeRate: 0, expected: 0},
		{name: "negative price", cash: 1000, price: -10, feeRate: 0, expected: 0},
		{name: "nan price", cash: 1000, price: math.NaN(), feeRate: 0, expected: 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, affordableShares(tc.cash, tc.price, tc.feeRate))
		})
	}
}

func (suite *SizerTestSuite) TestAffordableSharesNeverOverspends() {
	// The floored count must always be payable fee-inclusive.
	for _, cash := range []float64{1, 10, 99.99, 1234.56, 1_000_000} {
		shares := affordableShares(cash, 33.7, 0.001425)
		suite.LessOrEqual(BuyCost(shares, 33.7, 0.001425), cash)
	}
}
