package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BarTestSuite struct {
	suite.Suite
}

func TestBarSuite(t *testing.T) {
	suite.Run(t, new(BarTestSuite))
}

func (suite *BarTestSuite) TestTruthy() {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"True", true},
		{"t", true},
		{"yes", true},
		{"Y", true},
		{"1", true},
		{"1.0", true},
		{"-3", true},
		{"false", false},
		{"False", false},
		{"f", false},
		{"no", false},
		{"n", false},
		{"0", false},
		{"0.0", false},
		{"", false},
		{"  ", false},
		{"nan", false},
		{"NaN", false},
		{"none", false},
		{"null", false},
		{"hello", true}, // non-empty fallback
	}

	for _, tt := range tests {
		suite.Equal(tt.want, Truthy(tt.value), "Truthy(%q)", tt.value)
	}
}

func (suite *BarTestSuite) TestParseFloat() {
	suite.Equal(123.45, ParseFloat("123.45"))
	suite.Equal(-1.0, ParseFloat(" -1 "))
	suite.True(math.IsNaN(ParseFloat("")))
	suite.True(math.IsNaN(ParseFloat("abc")))
}

func (suite *BarTestSuite) TestUsableClose() {
	bar := Bar{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 100}
	suite.True(bar.UsableClose())

	bar.Close = 0
	suite.False(bar.UsableClose())

	bar.Close = -5
	suite.False(bar.UsableClose())

	bar.Close = math.NaN()
	suite.False(bar.UsableClose())
}

func (suite *BarTestSuite) TestRoundOutput() {
	suite.InDelta(668.9519, RoundOutput(2*334*1.001425), 1e-9)
	suite.Equal(1.0, RoundOutput(1.0000000001))
	suite.True(math.IsNaN(RoundOutput(math.NaN())))
}
