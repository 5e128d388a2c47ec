package engine

// Side distinguishes buy from sell executions for slippage purposes.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ApplySlippage converts a raw price into an execution price. Slippage is
// applied symmetrically against the trader: buys execute higher, sells lower.
// A non-positive bps leaves the price unchanged.
func ApplySlippage(price float64, bps float64, side Side) float64 {
	if bps <= 0 {
		return price
	}

	slip := bps / 10000.0

	if side == SideBuy {
		return price * (1 + slip)
	}

	return price * (1 - slip)
}

// BuyCost returns the total cash outlay for buying shares at the execution
// price, fee included. Fee applies multiplicatively on gross notional.
func BuyCost(shares int64, execPrice float64, feeRate float64) float64 {
	return float64(shares) * execPrice * (1 + feeRate)
}

// SellNet returns the net cash proceeds from selling shares at the execution
// price. Fee and tax each apply on gross notional; they are not compounded
// with each other.
func SellNet(shares int64, execPrice float64, feeRate float64, taxRate float64) float64 {
	return float64(shares) * execPrice * (1 - feeRate - taxRate)
}
