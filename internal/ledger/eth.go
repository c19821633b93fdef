package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const vaultABIJSON = `[
	{"name":"getBalance","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"token","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"recipient","type":"address"},{"name":"token","type":"string"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

func parseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("failed to parse abi: %v", err))
	}
	return parsed
}

var (
	erc20ABI = parseABI(erc20ABIJSON)
	vaultABI = parseABI(vaultABIJSON)
)

// EthGateway talks to the deployed token and vault contracts over JSON-RPC.
// All privileged calls are signed by the single operator key, so transaction
// submission is serialized behind a mutex to keep nonces ordered.
type EthGateway struct {
	client   *ethclient.Client
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	operator common.Address

	vault  *bind.BoundContract
	tokens map[string]*bind.BoundContract

	mu sync.Mutex // serializes operator-signed transactions
}

// NewEthGateway dials the node and binds the vault plus every configured
// token contract. tokenAddrs maps symbol to contract address.
func NewEthGateway(rpcURL string, chainID int64, operatorKeyHex, vaultAddr string, tokenAddrs map[string]string) (*EthGateway, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	g := &EthGateway{
		client:   client,
		chainID:  big.NewInt(chainID),
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
		vault:    bind.NewBoundContract(common.HexToAddress(vaultAddr), vaultABI, client, client, client),
		tokens:   make(map[string]*bind.BoundContract, len(tokenAddrs)),
	}
	for symbol, addr := range tokenAddrs {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("token %s: invalid address %q", symbol, addr)
		}
		g.tokens[symbol] = bind.NewBoundContract(common.HexToAddress(addr), erc20ABI, client, client, client)
	}
	return g, nil
}

func (g *EthGateway) Operator() string {
	return g.operator.Hex()
}

func (g *EthGateway) token(symbol string) (*bind.BoundContract, error) {
	c, ok := g.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("no contract bound for token %s", symbol)
	}
	return c, nil
}

func (g *EthGateway) BalanceOf(ctx context.Context, symbol, owner string) (decimal.Decimal, error) {
	c, err := g.token(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return g.callUint(ctx, c, "balanceOf", common.HexToAddress(owner))
}

func (g *EthGateway) Allowance(ctx context.Context, symbol, owner, spender string) (decimal.Decimal, error) {
	c, err := g.token(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return g.callUint(ctx, c, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

func (g *EthGateway) Transfer(ctx context.Context, symbol, to string, amount decimal.Decimal) (string, error) {
	c, err := g.token(symbol)
	if err != nil {
		return "", err
	}
	units, err := ToBaseUnits(amount)
	if err != nil {
		return "", err
	}
	return g.transact(ctx, c, "transfer", common.HexToAddress(to), units)
}

func (g *EthGateway) TransferFrom(ctx context.Context, symbol, from, to string, amount decimal.Decimal) (string, error) {
	c, err := g.token(symbol)
	if err != nil {
		return "", err
	}
	units, err := ToBaseUnits(amount)
	if err != nil {
		return "", err
	}
	return g.transact(ctx, c, "transferFrom", common.HexToAddress(from), common.HexToAddress(to), units)
}

func (g *EthGateway) VaultBalance(ctx context.Context, owner, symbol string) (decimal.Decimal, error) {
	return g.callUint(ctx, g.vault, "getBalance", common.HexToAddress(owner), symbol)
}

func (g *EthGateway) VaultWithdraw(ctx context.Context, owner, recipient, symbol string, amount decimal.Decimal) (string, error) {
	units, err := ToBaseUnits(amount)
	if err != nil {
		return "", err
	}
	return g.transact(ctx, g.vault, "withdraw", common.HexToAddress(owner), common.HexToAddress(recipient), symbol, units)
}

func (g *EthGateway) callUint(ctx context.Context, c *bind.BoundContract, method string, args ...interface{}) (decimal.Decimal, error) {
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return FromBaseUnits(value), nil
}

// transact submits an operator-signed transaction and waits for it to mine.
// A reverted receipt is reported as an error so callers never treat a failed
// leg as settled.
func (g *EthGateway) transact(ctx context.Context, c *bind.BoundContract, method string, args ...interface{}) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.Transact(opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", fmt.Errorf("%s: wait mined: %w", method, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%s: transaction %s reverted", method, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}
