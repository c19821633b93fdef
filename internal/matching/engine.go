package matching

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vaultex/exchange-api/internal/orderbook"
	"github.com/vaultex/exchange-api/internal/settlement"
	"github.com/vaultex/exchange-api/internal/types"
)

// Engine converts the pending order set of one asset into executed trades.
//
// A pass settles at most one pair. Settlement calls are not atomic with the
// store, so interleaving several settlements inside one pass would multiply
// the partial-failure states; instead callers re-run passes until no match
// remains.
type Engine struct {
	store    *orderbook.Store
	executor *settlement.Executor

	mu         sync.Mutex
	assetLocks map[string]*sync.Mutex
}

func NewEngine(store *orderbook.Store, executor *settlement.Executor) *Engine {
	return &Engine{
		store:      store,
		executor:   executor,
		assetLocks: make(map[string]*sync.Mutex),
	}
}

// lockAsset allows one in-flight pass per asset. Two concurrent passes over
// the same book would read the same remaining quantities and double-settle.
func (e *Engine) lockAsset(assetSymbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.assetLocks[assetSymbol]
	if !ok {
		l = &sync.Mutex{}
		e.assetLocks[assetSymbol] = l
	}
	return l
}

// Run executes one matching pass for the asset: it settles the first
// compatible buy/sell pair under price-time priority, or reports no match.
// Orders are only mutated after the settlement succeeds.
func (e *Engine) Run(ctx context.Context, assetSymbol string) (*types.MatchResult, error) {
	l := e.lockAsset(assetSymbol)
	l.Lock()
	defer l.Unlock()

	orders, err := e.store.GetPendingByAsset(assetSymbol)
	if err != nil {
		return nil, err
	}

	buys, sells := partition(orders)
	sellOrder, buyOrder := findPair(sells, buys)
	if sellOrder == nil {
		return &types.MatchResult{Matched: false}, nil
	}

	tradeQuantity := min(buyOrder.Quantity, sellOrder.Quantity)

	// Execution price and settlement mode come from the resting sell order.
	refs, err := e.executor.Settle(ctx, settlement.Request{
		Buyer:       buyOrder.UserAddress,
		Seller:      sellOrder.UserAddress,
		AssetSymbol: assetSymbol,
		Quantity:    tradeQuantity,
		Price:       sellOrder.Price,
		Mode:        sellOrder.Mode,
	})
	if err != nil {
		// Orders stay untouched; a later pass retries the pair.
		return nil, err
	}

	if err := e.applyFill(buyOrder, tradeQuantity); err != nil {
		return nil, err
	}
	if err := e.applyFill(sellOrder, tradeQuantity); err != nil {
		return nil, err
	}

	trade := &types.Trade{
		AssetSymbol:   assetSymbol,
		BuyerAddress:  buyOrder.UserAddress,
		SellerAddress: sellOrder.UserAddress,
		Quantity:      tradeQuantity,
		Price:         sellOrder.Price,
		TotalAmount:   tradeQuantity * sellOrder.Price,
		Mode:          sellOrder.Mode,
		AssetTxHash:   refs.AssetTx,
		PaymentTxHash: refs.PaymentTx,
	}
	if err := e.store.InsertTrade(trade); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "matching").
		Str("asset", assetSymbol).
		Str("buy_order", buyOrder.OrderID).
		Str("sell_order", sellOrder.OrderID).
		Float64("quantity", tradeQuantity).
		Float64("price", sellOrder.Price).
		Msg("matched and settled pair")

	return &types.MatchResult{Matched: true, Trade: trade}, nil
}

// RunToExhaustion repeats passes until no compatible pair remains, returning
// the number of trades executed. It stops on the first error; already
// executed trades stand.
func (e *Engine) RunToExhaustion(ctx context.Context, assetSymbol string) (int, error) {
	trades := 0
	for {
		result, err := e.Run(ctx, assetSymbol)
		if err != nil {
			return trades, err
		}
		if !result.Matched {
			return trades, nil
		}
		trades++
	}
}

// Trigger schedules matching for the asset without blocking the caller.
func (e *Engine) Trigger(assetSymbol string) {
	go func() {
		if _, err := e.RunToExhaustion(context.Background(), assetSymbol); err != nil {
			log.Error().
				Str("component", "matching").
				Str("asset", assetSymbol).
				Err(err).
				Msg("triggered matching pass failed")
		}
	}()
}

func (e *Engine) applyFill(order *types.Order, tradeQuantity float64) error {
	remaining := order.Quantity - tradeQuantity
	status := types.StatusPartial
	if remaining <= 0 {
		remaining = 0
		status = types.StatusFilled
	}
	if err := e.store.UpdateQuantityAndStatus(order.OrderID, remaining, status); err != nil {
		return err
	}
	order.Quantity = remaining
	order.Status = status
	return nil
}

// partition splits open orders by side and applies price-time priority: best
// bid first, best ask first, earlier creation winning within a price level.
// The input arrives oldest-first from the store, so the stable sort keeps the
// FIFO tie-break.
func partition(orders []types.Order) (buys, sells []*types.Order) {
	for i := range orders {
		switch orders[i].Side {
		case types.SideBuy:
			buys = append(buys, &orders[i])
		case types.SideSell:
			sells = append(sells, &orders[i])
		}
	}
	sort.SliceStable(buys, func(i, j int) bool { return buys[i].Price > buys[j].Price })
	sort.SliceStable(sells, func(i, j int) bool { return sells[i].Price < sells[j].Price })
	return buys, sells
}

// findPair returns the first compatible pair, scanning best ask against best
// bid. Orders from the same address never match each other.
func findPair(sells, buys []*types.Order) (*types.Order, *types.Order) {
	for _, sell := range sells {
		for _, buy := range buys {
			if buy.UserAddress == sell.UserAddress {
				continue
			}
			if buy.Price < sell.Price {
				continue
			}
			return sell, buy
		}
	}
	return nil, nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
