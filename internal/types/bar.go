package types

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
)

// RawBar is one trading day as read from the upstream data file: the OHLC
// columns plus every remaining column kept verbatim, keyed by its original
// name. Signal producers drifted through several naming conventions over
// time, so which of the extra columns carry the buy/sell/trend flags is not
// known until signal resolution runs over the whole sequence.
type RawBar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	// Extra holds the non-OHLC columns as raw strings, keyed by column name.
	Extra map[string]string
}

// Bar is one trading day after signal resolution: canonical boolean signal
// flags instead of the raw column set.
type Bar struct {
	Date       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	BuySignal  bool
	SellSignal bool
	TrendBreak bool
	// TrendLevel is informational only; trend exits key off TrendBreak.
	TrendLevel optional.Option[float64]
}

// Truthy reports whether a raw column value counts as true.
// Accepted true forms: "true", "t", "yes", "y", "1" and any non-zero number.
// Accepted false forms: "false", "f", "no", "n", "0", empty, "nan", "none",
// "null". Any other non-empty string is treated as true.
func Truthy(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))

	switch s {
	case "", "nan", "none", "null":
		return false
	case "true", "t", "yes", "y", "1":
		return true
	case "false", "f", "no", "n", "0":
		return false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0 && !math.IsNaN(f)
	}

	// fallback: non-empty string treated as true
	return true
}

// ParseFloat converts a raw column value to a float64, yielding NaN for
// anything unparseable (the same contract as the upstream producers).
func ParseFloat(v string) float64 {
	s := strings.TrimSpace(v)
	if s == "" {
		return math.NaN()
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}

	return f
}

// UsableClose reports whether the bar's close can serve as an actionable
// price: finite and strictly positive.
func (b Bar) UsableClose() bool {
	return !math.IsNaN(b.Close) && b.Close > 0
}
