package engine

import (
	"math"
	"sort"

	"github.com/moznion/go-optional"
	"github.com/quantra-lab/barsim/internal/logger"
	"github.com/quantra-lab/barsim/internal/types"
	"go.uber.org/zap"
)

// Canonical signal column names.
const (
	SignalColumnBuy   = "buy_signal"
	SignalColumnSell  = "sell_signal"
	SignalColumnTrend = "trend_break"

	// TrendLevelColumn is informational only; see types.Bar.
	TrendLevelColumn = "trend_level"
)

// Alias candidates per canonical name, in priority order. Signal producers
// went through several incompatible naming conventions; the resolver keeps the
// engine tolerant of all of them without upstream changes.
var (
	buySignalCandidates = []string{
		SignalColumnBuy, "buy", "signal_buy", "entry_signal", "enter", "long_entry", "entry", "buySignal",
	}
	sellSignalCandidates = []string{
		SignalColumnSell, "sell", "signal_sell", "exit_signal", "exit", "long_exit", "sellSignal",
	}
	trendBreakCandidates = []string{
		SignalColumnTrend, "trend_exit", "trend_fail", "trend_down", "gate_trend_break", "trendBreak",
	}
)

// ResolvedColumns reports which alias was chosen for each canonical signal.
// An empty string means no candidate column existed and an always-false
// signal was synthesized.
type ResolvedColumns struct {
	Buy   string
	Sell  string
	Trend string
}

// ResolveSignals selects the buy/sell/trend-break columns from the raw bar
// sequence and returns the resolved bars alongside the chosen column names.
// Raw signal values are never mutated; the resolver only decides which column
// each canonical signal reads from.
func ResolveSignals(log *logger.Logger, raws []types.RawBar) ([]types.Bar, ResolvedColumns) {
	columns := ResolvedColumns{
		Buy:   pickBestSignalColumn(raws, SignalColumnBuy, buySignalCandidates),
		Sell:  pickBestSignalColumn(raws, SignalColumnSell, sellSignalCandidates),
		Trend: pickBestSignalColumn(raws, SignalColumnTrend, trendBreakCandidates),
	}

	if log != nil {
		log.Info("Signal columns resolved",
			zap.String("buy", columns.Buy),
			zap.String("sell", columns.Sell),
			zap.String("trend", columns.Trend),
		)
	}

	bars := make([]types.Bar, 0, len(raws))

	for _, raw := range raws {
		bar := types.Bar{
			Date:       raw.Date,
			Open:       raw.Open,
			High:       raw.High,
			Low:        raw.Low,
			Close:      raw.Close,
			BuySignal:  signalValue(raw, columns.Buy),
			SellSignal: signalValue(raw, columns.Sell),
			TrendBreak: signalValue(raw, columns.Trend),
		}

		if v, ok := raw.Extra[TrendLevelColumn]; ok {
			if f := types.ParseFloat(v); !math.IsNaN(f) {
				bar.TrendLevel = optional.Some(f)
			}
		}

		bars = append(bars, bar)
	}

	return bars, columns
}

func signalValue(raw types.RawBar, column string) bool {
	if column == "" {
		return false
	}

	v, ok := raw.Extra[column]
	if !ok {
		return false
	}

	return types.Truthy(v)
}

// pickBestSignalColumn picks the candidate with the highest truthy count.
// On equal counts the lexicographically smaller name wins. If every existing
// candidate counts zero, the canonical name is preferred when present. If no
// candidate exists at all, an empty string is returned and the signal is
// synthesized as always-false.
func pickBestSignalColumn(raws []types.RawBar, canonical string, candidates []string) string {
	type columnStat struct {
		name  string
		count int
	}

	var stats []columnStat

	for _, candidate := range candidates {
		if !columnExists(raws, candidate) {
			continue
		}

		count := 0

		for _, raw := range raws {
			if types.Truthy(raw.Extra[candidate]) {
				count++
			}
		}

		stats = append(stats, columnStat{name: candidate, count: count})
	}

	if len(stats) == 0 {
		return ""
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}

		return stats[i].name < stats[j].name
	})

	best := stats[0]

	if best.count == 0 {
		if columnExists(raws, canonical) {
			return canonical
		}

		return best.name
	}

	return best.name
}

func columnExists(raws []types.RawBar, column string) bool {
	for _, raw := range raws {
		if _, ok := raw.Extra[column]; ok {
			return true
		}
	}

	return false
}
