package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale used for venue fees.
const BpsDenominator = 10000

var hundred = decimal.NewFromInt(100)

// MulDiv returns x*y/z rounded toward zero. z must be non-zero.
func MulDiv(x, y, z *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(x, y), z)
}

// ApplyBps returns amount * bps / 10000.
func ApplyBps(amount *big.Int, bps uint32) *big.Int {
	return MulDiv(amount, big.NewInt(int64(bps)), big.NewInt(BpsDenominator))
}

// IsPositive reports whether x is non-nil and greater than zero.
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// PercentOf returns part/base*100 rounded to places. Zero base yields zero.
func PercentOf(part, base *big.Int, places int32) decimal.Decimal {
	if base == nil || base.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(part, 0).
		Mul(hundred).
		DivRound(decimal.NewFromBigInt(base, 0), places+2).
		Round(places)
}

// GetAmountOut is the constant-product output for amountIn given reserves and
// a fee in basis points. Non-positive inputs yield zero.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if !IsPositive(amountIn) || !IsPositive(reserveIn) || !IsPositive(reserveOut) || feeBps >= BpsDenominator {
		return new(big.Int)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(BpsDenominator-feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(BpsDenominator)), amountInWithFee)
	return numerator.Quo(numerator, denominator)
}
