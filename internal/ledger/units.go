package ledger

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the scaling convention shared by every token the platform
// deploys.
const TokenDecimals = 18

// ToBaseUnits converts a human-readable amount to the ledger's scaled integer
// representation. Amounts with precision beyond the token's decimals are
// rejected rather than silently truncated.
func ToBaseUnits(amount decimal.Decimal) (*big.Int, error) {
	scaled := amount.Shift(TokenDecimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", amount, TokenDecimals)
	}
	if scaled.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts a scaled ledger value back to human-readable units.
func FromBaseUnits(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -TokenDecimals)
}
