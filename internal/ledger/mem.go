package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemGateway is an in-process ledger used when no RPC endpoint is configured
// and by the test suites. It enforces the same balance, allowance, and vault
// allocation rules the contracts do, so settlement failure paths behave like
// contract reverts.
type MemGateway struct {
	mu       sync.Mutex
	operator string
	txSeq    int

	balances   map[string]map[string]decimal.Decimal // symbol -> owner -> amount
	allowances map[string]map[string]decimal.Decimal // symbol -> owner:spender -> amount
	vault      map[string]map[string]decimal.Decimal // symbol -> owner -> amount
	vaultPool  map[string]decimal.Decimal            // symbol -> total held
}

func NewMemGateway(operator string) *MemGateway {
	return &MemGateway{
		operator:   operator,
		balances:   make(map[string]map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
		vault:      make(map[string]map[string]decimal.Decimal),
		vaultPool:  make(map[string]decimal.Decimal),
	}
}

func (g *MemGateway) Operator() string {
	return g.operator
}

// SetBalance seeds owner's wallet balance of the token.
func (g *MemGateway) SetBalance(symbol, owner string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket(g.balances, symbol)[owner] = amount
}

// SetAllowance seeds the amount owner allows spender to move.
func (g *MemGateway) SetAllowance(symbol, owner, spender string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket(g.allowances, symbol)[owner+":"+spender] = amount
}

// Deposit credits owner's vault allocation and the pooled vault balance.
func (g *MemGateway) Deposit(owner, symbol string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := bucket(g.vault, symbol)
	b[owner] = b[owner].Add(amount)
	g.vaultPool[symbol] = g.vaultPool[symbol].Add(amount)
}

func (g *MemGateway) BalanceOf(_ context.Context, symbol, owner string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return bucket(g.balances, symbol)[owner], nil
}

func (g *MemGateway) Allowance(_ context.Context, symbol, owner, spender string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return bucket(g.allowances, symbol)[owner+":"+spender], nil
}

func (g *MemGateway) Transfer(_ context.Context, symbol, to string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.move(symbol, g.operator, to, amount)
}

func (g *MemGateway) TransferFrom(_ context.Context, symbol, from, to string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := from + ":" + g.operator
	allowed := bucket(g.allowances, symbol)[key]
	if allowed.LessThan(amount) {
		return "", fmt.Errorf("%s: transfer amount exceeds allowance", symbol)
	}
	hash, err := g.move(symbol, from, to, amount)
	if err != nil {
		return "", err
	}
	g.allowances[symbol][key] = allowed.Sub(amount)
	return hash, nil
}

func (g *MemGateway) VaultBalance(_ context.Context, owner, symbol string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return bucket(g.vault, symbol)[owner], nil
}

func (g *MemGateway) VaultWithdraw(_ context.Context, owner, recipient, symbol string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	alloc := bucket(g.vault, symbol)
	if alloc[owner].LessThan(amount) {
		return "", fmt.Errorf("%s: withdrawal exceeds %s's vault allocation", symbol, owner)
	}
	alloc[owner] = alloc[owner].Sub(amount)
	g.vaultPool[symbol] = g.vaultPool[symbol].Sub(amount)
	b := bucket(g.balances, symbol)
	b[recipient] = b[recipient].Add(amount)
	return g.nextHash(), nil
}

func (g *MemGateway) move(symbol, from, to string, amount decimal.Decimal) (string, error) {
	b := bucket(g.balances, symbol)
	if b[from].LessThan(amount) {
		return "", fmt.Errorf("%s: transfer amount exceeds balance", symbol)
	}
	b[from] = b[from].Sub(amount)
	b[to] = b[to].Add(amount)
	return g.nextHash(), nil
}

func (g *MemGateway) nextHash() string {
	g.txSeq++
	return fmt.Sprintf("0xmem%08d", g.txSeq)
}

func bucket(m map[string]map[string]decimal.Decimal, symbol string) map[string]decimal.Decimal {
	b, ok := m[symbol]
	if !ok {
		b = make(map[string]decimal.Decimal)
		m[symbol] = b
	}
	return b
}
