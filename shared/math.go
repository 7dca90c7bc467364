package shared

import (
	"errors"
	"math"
)

// ErrArithmeticOverflow is returned when an operation on pool totals or
// payouts would overflow a uint64. Overflow is terminal for the triggering
// operation; values are never silently wrapped.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// Add returns a+b, or ErrArithmeticOverflow if the sum does not fit in uint64.
func Add(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// Sub returns a-b, or ErrArithmeticOverflow if b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// Mul returns a*b, or ErrArithmeticOverflow if the product does not fit in uint64.
func Mul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrArithmeticOverflow
	}
	return a * b, nil
}
