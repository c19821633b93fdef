package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway wraps the token and vault contracts behind the platform's operating
// account. Amounts cross this boundary in human-readable decimal units; each
// implementation converts to the ledger's scaled integer representation.
//
// Implementations must serialize transactions sent through the shared signer:
// overlapping sends from one account produce nonce conflicts at the node.
type Gateway interface {
	// BalanceOf returns owner's wallet balance of the token.
	BalanceOf(ctx context.Context, symbol, owner string) (decimal.Decimal, error)

	// Allowance returns the amount owner has approved spender to move.
	Allowance(ctx context.Context, symbol, owner, spender string) (decimal.Decimal, error)

	// Transfer moves tokens from the operator wallet and returns the
	// transaction hash.
	Transfer(ctx context.Context, symbol, to string, amount decimal.Decimal) (string, error)

	// TransferFrom moves tokens between user wallets using the operator's
	// allowance and returns the transaction hash.
	TransferFrom(ctx context.Context, symbol, from, to string, amount decimal.Decimal) (string, error)

	// VaultBalance returns owner's custodial vault balance of the token.
	VaultBalance(ctx context.Context, owner, symbol string) (decimal.Decimal, error)

	// VaultWithdraw draws down owner's vault allocation and releases the
	// tokens to the recipient's wallet, returning the transaction hash.
	VaultWithdraw(ctx context.Context, owner, recipient, symbol string, amount decimal.Decimal) (string, error)

	// Operator returns the platform's operating address, the spender for
	// approval-mode allowances.
	Operator() string
}
