package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/vaultex/exchange-api/internal/config"
	"github.com/vaultex/exchange-api/internal/ledger"
	"github.com/vaultex/exchange-api/internal/matching"
	"github.com/vaultex/exchange-api/internal/orderbook"
	"github.com/vaultex/exchange-api/internal/types"
	"github.com/vaultex/exchange-api/pkg/cache"
	"github.com/vaultex/exchange-api/pkg/response"
)

const bookCacheTTL = 2 * time.Second

// Service is the order lifecycle API: it validates and persists orders,
// schedules matching, and serves the read-side projections.
type Service struct {
	store   *orderbook.Store
	engine  *matching.Engine
	gateway ledger.Gateway
	cfg     *config.Config
	cache   *cache.RedisClient // optional; nil disables snapshot caching
}

func NewService(store *orderbook.Store, engine *matching.Engine, gateway ledger.Gateway, cfg *config.Config, cache *cache.RedisClient) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		gateway: gateway,
		cfg:     cfg,
		cache:   cache,
	}
}

// CreateOrder validates and persists a new order, then schedules a matching
// pass for its asset. The caller does not block on matching completion.
func (s *Service) CreateOrder(order *types.Order) error {
	if err := s.validateOrder(order); err != nil {
		return err
	}
	if err := s.store.Insert(order); err != nil {
		return err
	}

	log.Info().
		Str("component", "trading").
		Str("order_id", order.OrderID).
		Str("user", order.UserAddress).
		Str("asset", order.AssetSymbol).
		Str("side", order.Side).
		Float64("quantity", order.Quantity).
		Float64("price", order.Price).
		Str("mode", order.Mode).
		Msg("order created")

	s.engine.Trigger(order.AssetSymbol)
	return nil
}

// CancelOrder cancels a pending order owned by userAddress. Vault-mode funds
// need no explicit release: vault balances are tracked independently of order
// state and the executor re-checks them before every trade.
func (s *Service) CancelOrder(orderID, userAddress string) error {
	if err := s.store.MarkCancelled(orderID, userAddress); err != nil {
		return err
	}

	log.Info().
		Str("component", "trading").
		Str("order_id", orderID).
		Str("user", userAddress).
		Msg("order cancelled")
	return nil
}

// ListOrders returns all orders placed by the user, newest first.
func (s *Service) ListOrders(userAddress string) ([]types.Order, error) {
	return s.store.ListByOwner(userAddress)
}

// RunMatching runs passes for the asset until no compatible pair remains.
func (s *Service) RunMatching(ctx context.Context, assetSymbol string) (int, error) {
	return s.engine.RunToExhaustion(ctx, assetSymbol)
}

// OrderBook builds the aggregated book view for one asset, served from the
// redis snapshot when one is fresh.
func (s *Service) OrderBook(ctx context.Context, assetSymbol string) (*types.OrderBookResponse, error) {
	cacheKey := "orderbook:" + assetSymbol
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil {
			var book types.OrderBookResponse
			if err := json.Unmarshal([]byte(raw), &book); err == nil {
				return &book, nil
			}
		}
	}

	orders, err := s.store.GetPendingByAsset(assetSymbol)
	if err != nil {
		return nil, err
	}
	book := buildBook(assetSymbol, orders)

	if s.cache != nil {
		if raw, err := json.Marshal(book); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, bookCacheTTL); err != nil {
				log.Debug().Str("component", "trading").Err(err).Msg("order book cache write failed")
			}
		}
	}
	return book, nil
}

// Balances reads the user's wallet and vault holdings from the ledger, one
// entry per asset the platform knows plus the payment asset. Without a token
// registry the asset set falls back to the assets the user has traded.
func (s *Service) Balances(ctx context.Context, userAddress string) (*types.BalancesResponse, error) {
	symbols, err := s.balanceSymbols(userAddress)
	if err != nil {
		return nil, err
	}

	resp := &types.BalancesResponse{
		UserAddress: userAddress,
		Balances:    make([]types.AssetBalance, 0, len(symbols)),
		UpdatedAt:   time.Now(),
	}
	for _, symbol := range symbols {
		wallet, err := s.gateway.BalanceOf(ctx, symbol, userAddress)
		if err != nil {
			return nil, fmt.Errorf("wallet balance for %s: %w", symbol, err)
		}
		vault, err := s.gateway.VaultBalance(ctx, userAddress, symbol)
		if err != nil {
			return nil, fmt.Errorf("vault balance for %s: %w", symbol, err)
		}
		resp.Balances = append(resp.Balances, types.AssetBalance{
			AssetSymbol: symbol,
			Wallet:      wallet.String(),
			Vault:       vault.String(),
		})
	}
	return resp, nil
}

func (s *Service) balanceSymbols(userAddress string) ([]string, error) {
	symbols := []string{s.cfg.PaymentAsset}
	if len(s.cfg.TokenAddresses) > 0 {
		for symbol := range s.cfg.TokenAddresses {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols[1:])
		return symbols, nil
	}

	orders, err := s.store.ListByOwner(userAddress)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{s.cfg.PaymentAsset: true}
	for _, o := range orders {
		if !seen[o.AssetSymbol] {
			seen[o.AssetSymbol] = true
			symbols = append(symbols, o.AssetSymbol)
		}
	}
	sort.Strings(symbols[1:])
	return symbols, nil
}

func (s *Service) validateOrder(order *types.Order) error {
	if order.Side != types.SideBuy && order.Side != types.SideSell {
		return fmt.Errorf("%w: side must be %q or %q", types.ErrValidation, types.SideBuy, types.SideSell)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", types.ErrValidation)
	}
	if order.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", types.ErrValidation)
	}
	if order.UserAddress == "" {
		return fmt.Errorf("%w: user address is required", types.ErrValidation)
	}
	if !s.cfg.KnownAsset(order.AssetSymbol) {
		return fmt.Errorf("%w: unknown asset %q", types.ErrValidation, order.AssetSymbol)
	}
	switch order.Mode {
	case "":
		order.Mode = types.ModeVault
	case types.ModeVault, types.ModeApproval:
	default:
		return fmt.Errorf("%w: mode must be %q or %q", types.ErrValidation, types.ModeVault, types.ModeApproval)
	}
	return nil
}

func buildBook(assetSymbol string, orders []types.Order) *types.OrderBookResponse {
	levels := func(side string, descending bool) []types.BookLevel {
		byPrice := make(map[float64]*types.BookLevel)
		var prices []float64
		for _, o := range orders {
			if o.Side != side {
				continue
			}
			level, ok := byPrice[o.Price]
			if !ok {
				level = &types.BookLevel{Price: o.Price}
				byPrice[o.Price] = level
				prices = append(prices, o.Price)
			}
			level.Quantity += o.Quantity
			level.Orders++
		}
		sortPrices(prices, descending)
		out := make([]types.BookLevel, 0, len(prices))
		for _, p := range prices {
			out = append(out, *byPrice[p])
		}
		return out
	}

	return &types.OrderBookResponse{
		AssetSymbol: assetSymbol,
		Bids:        levels(types.SideBuy, true),
		Asks:        levels(types.SideSell, false),
		UpdatedAt:   time.Now(),
	}
}

func sortPrices(prices []float64, descending bool) {
	sort.Float64s(prices)
	if descending {
		for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
			prices[i], prices[j] = prices[j], prices[i]
		}
	}
}

// GinHandlers contains HTTP handlers for the order lifecycle endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type createOrderRequest struct {
	AssetSymbol string  `json:"asset_symbol" binding:"required"`
	Side        string  `json:"side" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	Price       float64 `json:"price" binding:"required"`
	Mode        string  `json:"mode"`
}

// CreateOrderHandler handles POST /orders. The owner address comes from the
// authenticated token, never from the request body.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			response.Unauthorized(c, "missing wallet address in token")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order := &types.Order{
			UserAddress: address,
			AssetSymbol: req.AssetSymbol,
			Side:        req.Side,
			Quantity:    req.Quantity,
			Price:       req.Price,
			Mode:        req.Mode,
		}
		if err := h.service.CreateOrder(order); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE /orders/:order_id.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			response.Unauthorized(c, "missing wallet address in token")
			return
		}

		orderID := c.Param("order_id")
		if err := h.service.CancelOrder(orderID, address); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"order_id": orderID, "status": types.StatusCancelled})
	}
}

// ListOrdersHandler handles GET /orders.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			response.Unauthorized(c, "missing wallet address in token")
			return
		}

		orders, err := h.service.ListOrders(address)
		response.Handle(c, orders, err)
	}
}

// BalancesHandler handles GET /balances.
func (h *GinHandlers) BalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			response.Unauthorized(c, "missing wallet address in token")
			return
		}

		balances, err := h.service.Balances(c.Request.Context(), address)
		response.Handle(c, balances, err)
	}
}

// OrderBookHandler handles GET /orderbook/:symbol.
func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, err := h.service.OrderBook(c.Request.Context(), c.Param("symbol"))
		response.Handle(c, book, err)
	}
}

// RunMatchingHandler handles POST /internal/matching/:symbol, running passes
// until the book has no compatible pair left.
func (h *GinHandlers) RunMatchingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.RunMatching(c.Request.Context(), c.Param("symbol"))
		if err != nil {
			response.Handle(c, gin.H{"trades_executed": trades}, err)
			return
		}
		response.Success(c, gin.H{"trades_executed": trades})
	}
}
