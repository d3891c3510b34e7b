package domain

import "math/big"

// BpsDenominator is the basis-point scale used throughout the AMM math.
const BpsDenominator = 10_000

var bpsDen = big.NewInt(BpsDenominator)

// AmountOut computes the constant-product output for a swap:
//
//	out = in*(1-fee) * reserveOut / (reserveIn + in*(1-fee))
//
// All math is integer with floor division, keeping estimates conservative.
// The result is always strictly less than reserveOut for positive inputs.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		reserveIn == nil || reserveIn.Sign() <= 0 ||
		reserveOut == nil || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(BpsDenominator-feeBps))

	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, bpsDen)
	den.Add(den, inWithFee)

	return num.Quo(num, den)
}

// ApplySwap executes a swap against the given reserves and returns the output
// amount together with the post-swap reserves. Inputs are not mutated.
func ApplySwap(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) (out, newReserveIn, newReserveOut *big.Int) {
	out = AmountOut(amountIn, reserveIn, reserveOut, feeBps)
	newReserveIn = new(big.Int).Add(reserveIn, amountIn)
	newReserveOut = new(big.Int).Sub(reserveOut, out)
	return out, newReserveIn, newReserveOut
}

// PriceImpactBps returns the price impact of a swap in basis points: the
// fraction of the input-side reserve the effective input represents after
// fees. Rounds down.
func PriceImpactBps(amountIn, reserveIn *big.Int, feeBps int64) int64 {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn == nil || reserveIn.Sign() <= 0 {
		return 0
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(BpsDenominator-feeBps))

	num := new(big.Int).Mul(inWithFee, bpsDen)
	den := new(big.Int).Mul(reserveIn, bpsDen)
	den.Add(den, inWithFee)

	impact := num.Quo(num, den)
	if !impact.IsInt64() {
		return BpsDenominator
	}
	return impact.Int64()
}
