package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into the token's smallest unit.
// Fractions beyond the token precision round up so a requirement is never understated.
func ToBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Ceil().BigInt()
}

// FromBaseUnits converts a smallest-unit value back into a human amount.
func FromBaseUnits(v *big.Int, decimals int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}
