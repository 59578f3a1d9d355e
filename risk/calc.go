package risk

import (
	"math"

	"github.com/rustyeddy/tradebot/market"
)

// PipSize derives the pip from the symbol's quote precision. Fractional
// pip quotes (5 digits, or 3 for JPY crosses) count ten points per pip;
// everything else treats one point as a pip.
func PipSize(info market.SymbolInfo) float64 {
	if info.Digits == 3 || info.Digits == 5 {
		return info.Point * 10
	}
	return info.Point
}

// StopDistancePips is the distance between entry and stop in pips.
func StopDistancePips(info market.SymbolInfo, entry, stop float64) float64 {
	pip := PipSize(info)
	if pip <= 0 {
		return 0
	}
	return math.Abs(entry-stop) / pip
}

// PipValuePerLot is what one pip is worth for one lot, in account currency.
func PipValuePerLot(info market.SymbolInfo) float64 {
	if info.TickSize <= 0 {
		return 0
	}
	return info.TickValue * PipSize(info) / info.TickSize
}

// StopPrice places a stop stopPips away from entry on the losing side.
func StopPrice(info market.SymbolInfo, entry, stopPips float64, long bool) float64 {
	d := stopPips * PipSize(info)
	if long {
		return entry - d
	}
	return entry + d
}

// RR is the reward to risk ratio of a trade plan. Zero when there is no
// risk to divide by.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}
