package lien

import (
	"math/big"
)

// Interest returns the interest accrued on the stack between point.last and
// timestamp, rounded down. Timestamps before point.last are rejected.
func Interest(stack *Stack, timestamp uint64) (*big.Int, error) {
	if stack == nil {
		return nil, ErrInvalidTerms
	}
	if timestamp < stack.Point.Last {
		return nil, ErrTimestampBeforeLast
	}
	return accrue(stack, timestamp-stack.Point.Last)
}

// Owed returns point.amount plus the interest accrued up to timestamp.
func Owed(stack *Stack, timestamp uint64) (*big.Int, error) {
	interest, err := Interest(stack, timestamp)
	if err != nil {
		return nil, err
	}
	return interest.Add(interest, cloneBigInt(stack.Point.Amount)), nil
}

// RemainingInterest projects the interest still to accrue between now and
// point.end. A matured stack has none.
func RemainingInterest(stack *Stack, now uint64) (*big.Int, error) {
	if stack == nil {
		return nil, ErrInvalidTerms
	}
	if now >= stack.Point.End {
		return big.NewInt(0), nil
	}
	return accrue(stack, stack.Point.End-now)
}

// Slope is the instantaneous growth of the lien's debt per second.
func Slope(stack *Stack) (*big.Int, error) {
	if stack == nil {
		return nil, ErrInvalidTerms
	}
	return mulWadDown(stack.Lien.Details.Rate, stack.Point.Amount)
}

func accrue(stack *Stack, seconds uint64) (*big.Int, error) {
	rateTimesDelta := new(big.Int).Mul(new(big.Int).SetUint64(seconds), cloneBigInt(stack.Lien.Details.Rate))
	return mulWadDown(rateTimesDelta, stack.Point.Amount)
}
