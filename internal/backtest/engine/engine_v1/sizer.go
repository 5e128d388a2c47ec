package engine

import "math"

// affordableShares returns the whole number of shares the available cash can
// buy at the execution price, fee included. Fractional shares are floored
// away, which is what keeps the cash balance non-negative by construction.
func affordableShares(cash float64, execPrice float64, buyFeeRate float64) int64 {
	if execPrice <= 0 || math.IsNaN(execPrice) || cash <= 0 {
		return 0
	}

	perShare := execPrice * (1 + buyFeeRate)
	if perShare <= 0 {
		return 0
	}

	return int64(math.Floor(cash / perShare))
}
