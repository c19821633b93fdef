package ledger

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(decimal.NewFromFloat(1.5))
	require.NoError(t, err)
	expected, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, units.Cmp(expected))
}

func TestToBaseUnitsRejectsExcessPrecision(t *testing.T) {
	tooPrecise := decimal.New(1, -19) // 1e-19, below one base unit
	_, err := ToBaseUnits(tooPrecise)
	assert.Error(t, err)
}

func TestToBaseUnitsRejectsNegative(t *testing.T) {
	_, err := ToBaseUnits(decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestFromBaseUnitsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("123.456789012345678901").Round(TokenDecimals)
	units, err := ToBaseUnits(amount)
	require.NoError(t, err)
	assert.True(t, amount.Equal(FromBaseUnits(units)))
}
