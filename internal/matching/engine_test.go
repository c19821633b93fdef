package matching

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultex/exchange-api/internal/database"
	"github.com/vaultex/exchange-api/internal/ledger"
	"github.com/vaultex/exchange-api/internal/orderbook"
	"github.com/vaultex/exchange-api/internal/settlement"
	"github.com/vaultex/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	paymentAsset = "USDV"
	operator     = "0xoperator"
)

type fixture struct {
	db      *gorm.DB
	store   *orderbook.Store
	gateway *ledger.MemGateway
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, database.Migrate(db), "migrate schema")

	store := orderbook.NewStore(db)
	gateway := ledger.NewMemGateway(operator)
	executor := settlement.NewExecutor(gateway, paymentAsset)
	return &fixture{
		db:      db,
		store:   store,
		gateway: gateway,
		engine:  NewEngine(store, executor),
	}
}

// placeOrder inserts an order and nudges the clock so created_at stays
// strictly increasing for FIFO assertions.
func (f *fixture) placeOrder(t *testing.T, user, side string, quantity, price float64, mode string) *types.Order {
	t.Helper()
	order := &types.Order{
		UserAddress: user,
		AssetSymbol: "CLV",
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		Mode:        mode,
	}
	require.NoError(t, f.store.Insert(order))
	time.Sleep(5 * time.Millisecond)
	return order
}

// fundVault gives the counterparties enough custody balance for any trade in
// these tests.
func (f *fixture) fundVault(buyer, seller string) {
	f.gateway.Deposit(seller, "CLV", decimal.NewFromInt(1000))
	f.gateway.Deposit(buyer, paymentAsset, decimal.NewFromInt(10000))
}

func (f *fixture) reload(t *testing.T, order *types.Order) *types.Order {
	t.Helper()
	stored, err := f.store.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return stored
}

func (f *fixture) tradeCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&types.Trade{}).Count(&count).Error)
	return count
}

func TestFullFillVaultMode(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xseller")

	sell := f.placeOrder(t, "0xseller", types.SideSell, 10, 10, types.ModeVault)
	buy := f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)

	trade := result.Trade
	assert.Equal(t, 10.0, trade.Quantity)
	assert.Equal(t, 10.0, trade.Price)
	assert.Equal(t, 100.0, trade.TotalAmount)
	assert.Equal(t, "0xbuyer", trade.BuyerAddress)
	assert.Equal(t, "0xseller", trade.SellerAddress)
	assert.Equal(t, types.ModeVault, trade.Mode)
	assert.NotEmpty(t, trade.AssetTxHash)
	assert.NotEmpty(t, trade.PaymentTxHash)

	for _, order := range []*types.Order{buy, sell} {
		stored := f.reload(t, order)
		assert.Equal(t, types.StatusFilled, stored.Status)
		assert.Equal(t, 0.0, stored.Quantity)
	}

	ctx := context.Background()
	buyerAsset, _ := f.gateway.BalanceOf(ctx, "CLV", "0xbuyer")
	sellerPayment, _ := f.gateway.BalanceOf(ctx, paymentAsset, "0xseller")
	assert.True(t, buyerAsset.Equal(decimal.NewFromInt(10)))
	assert.True(t, sellerPayment.Equal(decimal.NewFromInt(100)))
}

func TestPartialFill(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xseller")

	buy := f.placeOrder(t, "0xbuyer", types.SideBuy, 5, 10, types.ModeVault)
	sell := f.placeOrder(t, "0xseller", types.SideSell, 3, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, 3.0, result.Trade.Quantity)

	storedBuy := f.reload(t, buy)
	assert.Equal(t, types.StatusPartial, storedBuy.Status)
	assert.Equal(t, 2.0, storedBuy.Quantity)

	storedSell := f.reload(t, sell)
	assert.Equal(t, types.StatusFilled, storedSell.Status)
	assert.Equal(t, 0.0, storedSell.Quantity)
}

func TestQuantityConservation(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xseller")

	buy := f.placeOrder(t, "0xbuyer", types.SideBuy, 7, 10, types.ModeVault)
	sell := f.placeOrder(t, "0xseller", types.SideSell, 4, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)

	tradeQty := result.Trade.Quantity
	assert.Equal(t, 7-f.reload(t, buy).Quantity, tradeQty)
	assert.Equal(t, 4-f.reload(t, sell).Quantity, tradeQty)
}

func TestNoSelfTrade(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xalice", "0xalice")

	f.placeOrder(t, "0xalice", types.SideSell, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xalice", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int64(0), f.tradeCount(t))
}

func TestNoPriceOverlap(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xseller")

	f.placeOrder(t, "0xseller", types.SideSell, 10, 11, types.ModeVault)
	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestPricePriorityAndRestingPrice(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xcheap")
	f.fundVault("0xbuyer", "0xdear")

	cheap := f.placeOrder(t, "0xcheap", types.SideSell, 10, 9, types.ModeVault)
	f.placeOrder(t, "0xdear", types.SideSell, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)

	assert.Equal(t, "0xcheap", result.Trade.SellerAddress, "best ask matches first")
	assert.Equal(t, 9.0, result.Trade.Price, "execution at the resting sell order's price")
	assert.Equal(t, types.StatusFilled, f.reload(t, cheap).Status)
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xfirst")
	f.fundVault("0xbuyer", "0xsecond")

	first := f.placeOrder(t, "0xfirst", types.SideSell, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xsecond", types.SideSell, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, "0xfirst", result.Trade.SellerAddress, "older order wins at equal price")
	assert.Equal(t, types.StatusFilled, f.reload(t, first).Status)
}

func TestSellerModeDecidesSettlement(t *testing.T) {
	f := newFixture(t)
	// Seller placed an approval-mode order: wallets and allowances are
	// funded, vaults stay empty.
	f.gateway.SetBalance("CLV", "0xseller", decimal.NewFromInt(10))
	f.gateway.SetBalance(paymentAsset, "0xbuyer", decimal.NewFromInt(100))
	f.gateway.SetAllowance("CLV", "0xseller", operator, decimal.NewFromInt(10))
	f.gateway.SetAllowance(paymentAsset, "0xbuyer", operator, decimal.NewFromInt(100))

	f.placeOrder(t, "0xseller", types.SideSell, 10, 10, types.ModeApproval)
	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, types.ModeApproval, result.Trade.Mode)
}

func TestSettlementFailureLeavesOrdersUntouched(t *testing.T) {
	f := newFixture(t)
	// No vault funding at all: the precondition check fails.

	buy := f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)
	sell := f.placeOrder(t, "0xseller", types.SideSell, 10, 10, types.ModeVault)

	_, err := f.engine.Run(context.Background(), "CLV")
	assert.ErrorIs(t, err, types.ErrInsufficientVaultBalance)

	for _, order := range []*types.Order{buy, sell} {
		stored := f.reload(t, order)
		assert.Equal(t, types.StatusPending, stored.Status)
		assert.Equal(t, 10.0, stored.Quantity)
	}
	assert.Equal(t, int64(0), f.tradeCount(t))
}

func TestIdempotentWhenNoCompatiblePairs(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	assert.False(t, result.Matched)

	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)
	result, err = f.engine.Run(context.Background(), "CLV")
	require.NoError(t, err)
	assert.False(t, result.Matched, "a one-sided book never matches")
}

func TestConcurrentRunsNeverDoubleSettle(t *testing.T) {
	f := newFixture(t)
	// Vaults are funded for exactly the crossed quantity, so any pass that
	// settled the same pair twice would overdraw an allocation and error.
	f.gateway.Deposit("0xseller", "CLV", decimal.NewFromInt(30))
	for _, buyer := range []string{"0xb1", "0xb2", "0xb3"} {
		f.gateway.Deposit(buyer, paymentAsset, decimal.NewFromInt(100))
	}

	sell := f.placeOrder(t, "0xseller", types.SideSell, 30, 10, types.ModeVault)
	buys := []*types.Order{
		f.placeOrder(t, "0xb1", types.SideBuy, 10, 10, types.ModeVault),
		f.placeOrder(t, "0xb2", types.SideBuy, 10, 10, types.ModeVault),
		f.placeOrder(t, "0xb3", types.SideBuy, 10, 10, types.ModeVault),
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.RunToExhaustion(context.Background(), "CLV")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var tradedQty float64
	require.NoError(t, f.db.Model(&types.Trade{}).
		Select("COALESCE(SUM(quantity), 0)").Scan(&tradedQty).Error)
	assert.Equal(t, 30.0, tradedQty, "total traded equals the crossed quantity")
	assert.Equal(t, int64(3), f.tradeCount(t))

	storedSell := f.reload(t, sell)
	assert.Equal(t, types.StatusFilled, storedSell.Status)
	assert.Equal(t, 0.0, storedSell.Quantity)
	for _, buy := range buys {
		stored := f.reload(t, buy)
		assert.Equal(t, types.StatusFilled, stored.Status)
		assert.Equal(t, 0.0, stored.Quantity)
	}

	ctx := context.Background()
	sellerPayment, _ := f.gateway.BalanceOf(ctx, paymentAsset, "0xseller")
	assert.True(t, sellerPayment.Equal(decimal.NewFromInt(300)), "payment moved exactly once per trade")
}

func TestRunToExhaustion(t *testing.T) {
	f := newFixture(t)
	f.fundVault("0xbuyer", "0xseller")
	f.fundVault("0xbuyer2", "0xseller2")

	f.placeOrder(t, "0xseller", types.SideSell, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xseller2", types.SideSell, 5, 10, types.ModeVault)
	f.placeOrder(t, "0xbuyer", types.SideBuy, 10, 10, types.ModeVault)
	f.placeOrder(t, "0xbuyer2", types.SideBuy, 5, 10, types.ModeVault)

	trades, err := f.engine.RunToExhaustion(context.Background(), "CLV")
	require.NoError(t, err)
	assert.Equal(t, 2, trades)

	pending, err := f.store.GetPendingByAsset("CLV")
	require.NoError(t, err)
	assert.Empty(t, pending, "book fully matched")
}
