package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vaultex/exchange-api/internal/ledger"
	"github.com/vaultex/exchange-api/internal/types"
)

// Request describes one matched trade to settle.
type Request struct {
	Buyer       string
	Seller      string
	AssetSymbol string
	Quantity    float64
	Price       float64
	Mode        string
}

// TxRefs carries the transaction hashes of both settlement legs.
type TxRefs struct {
	AssetTx   string // asset moving seller -> buyer
	PaymentTx string // payment moving buyer -> seller
}

// settler performs the two-leg value transfer for one settlement mode.
type settler interface {
	settle(ctx context.Context, req Request, quantity, total decimal.Decimal) (*TxRefs, error)
}

// Executor performs on-chain value transfer for matched trades. It never
// touches the order book; order mutation is the matching engine's job and
// happens only after Settle reports success.
type Executor struct {
	gateway      ledger.Gateway
	paymentAsset string
	settlers     map[string]settler
	timeout      time.Duration
}

// DefaultTimeout bounds one settlement's wait for chain confirmation. A
// timed-out settlement is a failure; the orders stay in their pre-match
// state and a later pass retries the pair.
const DefaultTimeout = 60 * time.Second

func NewExecutor(gateway ledger.Gateway, paymentAsset string) *Executor {
	e := &Executor{
		gateway:      gateway,
		paymentAsset: paymentAsset,
		timeout:      DefaultTimeout,
	}
	e.settlers = map[string]settler{
		types.ModeVault:    &vaultSettler{e},
		types.ModeApproval: &approvalSettler{e},
	}
	return e
}

// Settle exchanges quantity of the asset for quantity*price of the payment
// asset between buyer and seller, using the mode recorded on the resting
// order.
//
// The two legs are separate transactions with no compensating action: a
// failure after the first leg leaves the ledger half-moved. Callers must not
// mutate order state unless Settle returns nil.
func (e *Executor) Settle(ctx context.Context, req Request) (*TxRefs, error) {
	s, ok := e.settlers[req.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown settlement mode %q", types.ErrValidation, req.Mode)
	}

	quantity := decimal.NewFromFloat(req.Quantity)
	total := quantity.Mul(decimal.NewFromFloat(req.Price))

	logger := log.With().
		Str("component", "settlement").
		Str("asset", req.AssetSymbol).
		Str("buyer", req.Buyer).
		Str("seller", req.Seller).
		Str("mode", req.Mode).
		Str("quantity", quantity.String()).
		Str("total_payment", total.String()).
		Logger()
	logger.Info().Msg("settling matched trade")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	refs, err := s.settle(ctx, req, quantity, total)
	if err != nil {
		logger.Error().Err(err).Msg("settlement failed")
		return nil, err
	}

	logger.Info().
		Str("asset_tx", refs.AssetTx).
		Str("payment_tx", refs.PaymentTx).
		Msg("settlement complete")
	return refs, nil
}

// approvalSettler moves funds held in user wallets via operator allowances.
type approvalSettler struct {
	e *Executor
}

func (s *approvalSettler) settle(ctx context.Context, req Request, quantity, total decimal.Decimal) (*TxRefs, error) {
	gw := s.e.gateway
	operator := gw.Operator()

	sellerAllowance, err := gw.Allowance(ctx, req.AssetSymbol, req.Seller, operator)
	if err != nil {
		return nil, fmt.Errorf("%w: seller allowance check: %v", types.ErrSettlement, err)
	}
	if sellerAllowance.LessThan(quantity) {
		return nil, fmt.Errorf("%w: seller approved %s %s, trade needs %s",
			types.ErrInsufficientAllowance, sellerAllowance, req.AssetSymbol, quantity)
	}

	buyerAllowance, err := gw.Allowance(ctx, s.e.paymentAsset, req.Buyer, operator)
	if err != nil {
		return nil, fmt.Errorf("%w: buyer allowance check: %v", types.ErrSettlement, err)
	}
	if buyerAllowance.LessThan(total) {
		return nil, fmt.Errorf("%w: buyer approved %s %s, trade needs %s",
			types.ErrInsufficientAllowance, buyerAllowance, s.e.paymentAsset, total)
	}

	assetTx, err := gw.TransferFrom(ctx, req.AssetSymbol, req.Seller, req.Buyer, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: asset leg: %v", types.ErrSettlement, err)
	}
	paymentTx, err := gw.TransferFrom(ctx, s.e.paymentAsset, req.Buyer, req.Seller, total)
	if err != nil {
		// Asset leg already settled; there is no compensating transfer.
		return nil, fmt.Errorf("%w: payment leg after asset tx %s: %v", types.ErrSettlement, assetTx, err)
	}
	return &TxRefs{AssetTx: assetTx, PaymentTx: paymentTx}, nil
}

// vaultSettler releases funds pre-deposited in the custodial vault.
type vaultSettler struct {
	e *Executor
}

func (s *vaultSettler) settle(ctx context.Context, req Request, quantity, total decimal.Decimal) (*TxRefs, error) {
	gw := s.e.gateway

	sellerVault, err := gw.VaultBalance(ctx, req.Seller, req.AssetSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: seller vault check: %v", types.ErrSettlement, err)
	}
	if sellerVault.LessThan(quantity) {
		return nil, fmt.Errorf("%w: seller holds %s %s in vault, trade needs %s",
			types.ErrInsufficientVaultBalance, sellerVault, req.AssetSymbol, quantity)
	}

	buyerVault, err := gw.VaultBalance(ctx, req.Buyer, s.e.paymentAsset)
	if err != nil {
		return nil, fmt.Errorf("%w: buyer vault check: %v", types.ErrSettlement, err)
	}
	if buyerVault.LessThan(total) {
		return nil, fmt.Errorf("%w: buyer holds %s %s in vault, trade needs %s",
			types.ErrInsufficientVaultBalance, buyerVault, s.e.paymentAsset, total)
	}

	assetTx, err := gw.VaultWithdraw(ctx, req.Seller, req.Buyer, req.AssetSymbol, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: asset leg: %v", types.ErrSettlement, err)
	}
	paymentTx, err := gw.VaultWithdraw(ctx, req.Buyer, req.Seller, s.e.paymentAsset, total)
	if err != nil {
		// Asset leg already settled; there is no compensating withdrawal.
		return nil, fmt.Errorf("%w: payment leg after asset tx %s: %v", types.ErrSettlement, assetTx, err)
	}
	return &TxRefs{AssetTx: assetTx, PaymentTx: paymentTx}, nil
}
