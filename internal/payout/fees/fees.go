// Package fees computes the platform service fee split for a payout.
package fees

import (
	"math/big"

	dErrors "payouts/pkg/domain-errors"
)

// DefaultRateBps is the platform service fee: 5% of gross ticket revenue.
const DefaultRateBps int32 = 500

// Breakdown splits gross revenue into the platform fee and the organizer's
// net payable amount, both in minor units. Fee + Net always equals the gross.
type Breakdown struct {
	Fee int64
	Net int64
}

// Calculate returns the fee breakdown for gross revenue in minor units at the
// given rate in basis points. Net is gross*(1-rate) rounded half-even to the
// minor unit; the fee is the exact remainder, so no cent is ever created or
// lost. Pure and deterministic.
func Calculate(gross int64, rateBps int32) (Breakdown, error) {
	if gross < 0 {
		return Breakdown{}, dErrors.New(dErrors.CodeInvalidInput, "gross revenue must not be negative")
	}
	if rateBps < 0 || rateBps > 10000 {
		return Breakdown{}, dErrors.New(dErrors.CodeInvalidInput, "fee rate must be between 0 and 10000 basis points")
	}

	net := roundHalfEven(gross, 10000-int64(rateBps), 10000)
	return Breakdown{Fee: gross - net, Net: net}, nil
}

// roundHalfEven computes value*num/den with banker's rounding. big.Rat keeps
// the intermediate product exact for any revenue a single event can produce.
func roundHalfEven(value, num, den int64) int64 {
	exact := new(big.Rat).SetFrac64(num, den)
	exact.Mul(exact, new(big.Rat).SetInt64(value))

	quo := new(big.Int)
	rem := new(big.Int)
	quo.QuoRem(exact.Num(), exact.Denom(), rem)

	// Compare twice the remainder against the denominator to decide rounding.
	rem.Abs(rem)
	rem.Lsh(rem, 1)
	switch rem.Cmp(exact.Denom()) {
	case 1:
		quo.Add(quo, big.NewInt(1))
	case 0:
		// Halfway: round to even.
		if quo.Bit(0) == 1 {
			quo.Add(quo, big.NewInt(1))
		}
	}
	return quo.Int64()
}
