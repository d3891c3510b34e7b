package domain

import (
	"math/big"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
)

// SandwichLegs holds the modeled outcome of the three-leg sequence for a
// given front-run size.
type SandwichLegs struct {
	FrontRunIn   *big.Int // attacker input, token-in units
	FrontRunOut  *big.Int // attacker intermediate holding, token-out units
	VictimOut    *big.Int // what the victim receives after the shift
	BackRunOut   *big.Int // attacker proceeds from selling the holding back
	Profit       *big.Int // BackRunOut - FrontRunIn, may be negative
}

// ModelSandwich runs the constant-product three-leg model: attacker buys
// frontRun of the victim's input token, the victim's swap executes against
// the shifted pool, then the attacker sells the acquired holding back.
// Returns nil when the victim's minimum-output constraint would be violated
// (the victim transaction would revert, so the sandwich cannot land).
// All arithmetic is integer with floor division.
func ModelSandwich(frontRun, victimIn, victimMinOut, reserveIn, reserveOut *big.Int, feeBps int64) *SandwichLegs {
	if frontRun == nil || frontRun.Sign() < 0 {
		return nil
	}

	rIn := new(big.Int).Set(reserveIn)
	rOut := new(big.Int).Set(reserveOut)

	// Leg 1: front-run buy.
	frontOut := big.NewInt(0)
	if frontRun.Sign() > 0 {
		frontOut, rIn, rOut = detection.ApplySwap(frontRun, rIn, rOut, feeBps)
	}

	// Leg 2: victim swap against the shifted pool.
	victimOut, rIn, rOut := detection.ApplySwap(victimIn, rIn, rOut, feeBps)
	if victimMinOut != nil && victimMinOut.Sign() > 0 && victimOut.Cmp(victimMinOut) < 0 {
		return nil
	}

	// Leg 3: back-run sell of the intermediate holding. Direction reverses.
	backOut := big.NewInt(0)
	if frontOut.Sign() > 0 {
		backOut, _, _ = detection.ApplySwap(frontOut, rOut, rIn, feeBps)
	}

	return &SandwichLegs{
		FrontRunIn:  new(big.Int).Set(frontRun),
		FrontRunOut: frontOut,
		VictimOut:   victimOut,
		BackRunOut:  backOut,
		Profit:      new(big.Int).Sub(backOut, frontRun),
	}
}
