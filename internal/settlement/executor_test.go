package settlement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultex/exchange-api/internal/ledger"
	"github.com/vaultex/exchange-api/internal/types"
)

const (
	paymentAsset = "USDV"
	operator     = "0xoperator"
	buyer        = "0xbuyer"
	seller       = "0xseller"
)

func vaultRequest() Request {
	return Request{
		Buyer:       buyer,
		Seller:      seller,
		AssetSymbol: "CLV",
		Quantity:    10,
		Price:       10,
		Mode:        types.ModeVault,
	}
}

func TestSettleVaultMode(t *testing.T) {
	g := ledger.NewMemGateway(operator)
	g.Deposit(seller, "CLV", decimal.NewFromInt(10))
	g.Deposit(buyer, paymentAsset, decimal.NewFromInt(100))

	executor := NewExecutor(g, paymentAsset)
	refs, err := executor.Settle(context.Background(), vaultRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, refs.AssetTx)
	assert.NotEmpty(t, refs.PaymentTx)
	assert.NotEqual(t, refs.AssetTx, refs.PaymentTx)

	ctx := context.Background()
	buyerAsset, _ := g.BalanceOf(ctx, "CLV", buyer)
	sellerPayment, _ := g.BalanceOf(ctx, paymentAsset, seller)
	assert.True(t, buyerAsset.Equal(decimal.NewFromInt(10)), "buyer receives the asset")
	assert.True(t, sellerPayment.Equal(decimal.NewFromInt(100)), "seller receives quantity*price payment")
}

func TestSettleVaultModeInsufficientSellerBalance(t *testing.T) {
	g := ledger.NewMemGateway(operator)
	g.Deposit(seller, "CLV", decimal.NewFromInt(5)) // needs 10
	g.Deposit(buyer, paymentAsset, decimal.NewFromInt(100))

	executor := NewExecutor(g, paymentAsset)
	_, err := executor.Settle(context.Background(), vaultRequest())
	assert.ErrorIs(t, err, types.ErrInsufficientVaultBalance)
}

func TestSettleVaultModeExhaustedAllocation(t *testing.T) {
	// The seller deposited enough for one trade only. The second settlement
	// must fail the vault precondition, not revert mid-transfer.
	g := ledger.NewMemGateway(operator)
	g.Deposit(seller, "CLV", decimal.NewFromInt(10))
	g.Deposit(buyer, paymentAsset, decimal.NewFromInt(200))

	executor := NewExecutor(g, paymentAsset)
	_, err := executor.Settle(context.Background(), vaultRequest())
	require.NoError(t, err)

	_, err = executor.Settle(context.Background(), vaultRequest())
	assert.ErrorIs(t, err, types.ErrInsufficientVaultBalance)

	ctx := context.Background()
	buyerAsset, _ := g.BalanceOf(ctx, "CLV", buyer)
	assert.True(t, buyerAsset.Equal(decimal.NewFromInt(10)), "only the first trade moved value")
}

func TestSettleVaultModeInsufficientBuyerPayment(t *testing.T) {
	g := ledger.NewMemGateway(operator)
	g.Deposit(seller, "CLV", decimal.NewFromInt(10))
	g.Deposit(buyer, paymentAsset, decimal.NewFromInt(50)) // needs 100

	executor := NewExecutor(g, paymentAsset)
	_, err := executor.Settle(context.Background(), vaultRequest())
	assert.ErrorIs(t, err, types.ErrInsufficientVaultBalance)
}

func TestSettleApprovalMode(t *testing.T) {
	g := ledger.NewMemGateway(operator)
	g.SetBalance("CLV", seller, decimal.NewFromInt(10))
	g.SetBalance(paymentAsset, buyer, decimal.NewFromInt(100))
	g.SetAllowance("CLV", seller, operator, decimal.NewFromInt(10))
	g.SetAllowance(paymentAsset, buyer, operator, decimal.NewFromInt(100))

	executor := NewExecutor(g, paymentAsset)
	req := vaultRequest()
	req.Mode = types.ModeApproval

	refs, err := executor.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, refs.AssetTx)
	assert.NotEmpty(t, refs.PaymentTx)

	ctx := context.Background()
	buyerAsset, _ := g.BalanceOf(ctx, "CLV", buyer)
	sellerPayment, _ := g.BalanceOf(ctx, paymentAsset, seller)
	assert.True(t, buyerAsset.Equal(decimal.NewFromInt(10)))
	assert.True(t, sellerPayment.Equal(decimal.NewFromInt(100)))
}

func TestSettleApprovalModeInsufficientAllowance(t *testing.T) {
	g := ledger.NewMemGateway(operator)
	g.SetBalance("CLV", seller, decimal.NewFromInt(10))
	g.SetBalance(paymentAsset, buyer, decimal.NewFromInt(100))
	g.SetAllowance("CLV", seller, operator, decimal.NewFromInt(3)) // needs 10
	g.SetAllowance(paymentAsset, buyer, operator, decimal.NewFromInt(100))

	executor := NewExecutor(g, paymentAsset)
	req := vaultRequest()
	req.Mode = types.ModeApproval

	_, err := executor.Settle(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrInsufficientAllowance)
}

func TestSettleApprovalModeLegFailure(t *testing.T) {
	// Allowances pass the precondition but the buyer's wallet cannot cover
	// the payment leg, so the transfer itself reverts after the asset leg.
	g := ledger.NewMemGateway(operator)
	g.SetBalance("CLV", seller, decimal.NewFromInt(10))
	g.SetBalance(paymentAsset, buyer, decimal.NewFromInt(10)) // needs 100
	g.SetAllowance("CLV", seller, operator, decimal.NewFromInt(10))
	g.SetAllowance(paymentAsset, buyer, operator, decimal.NewFromInt(100))

	executor := NewExecutor(g, paymentAsset)
	req := vaultRequest()
	req.Mode = types.ModeApproval

	_, err := executor.Settle(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrSettlement)
}

func TestSettleUnknownMode(t *testing.T) {
	executor := NewExecutor(ledger.NewMemGateway(operator), paymentAsset)
	req := vaultRequest()
	req.Mode = "escrow"

	_, err := executor.Settle(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrValidation)
}
