package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vaultex/exchange-api/internal/auth"
	"github.com/vaultex/exchange-api/internal/config"
	"github.com/vaultex/exchange-api/internal/database"
	"github.com/vaultex/exchange-api/internal/ledger"
	"github.com/vaultex/exchange-api/internal/matching"
	"github.com/vaultex/exchange-api/internal/orderbook"
	"github.com/vaultex/exchange-api/internal/settlement"
	"github.com/vaultex/exchange-api/internal/trades"
	"github.com/vaultex/exchange-api/internal/trading"
	"github.com/vaultex/exchange-api/pkg/cache"
	"github.com/vaultex/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// devOperator stands in for the platform signer when no chain is configured.
const devOperator = "0x0000000000000000000000000000000000000001"

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the exchange API server with graceful shutdown
// support.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Pick the ledger backend: a real chain when an RPC endpoint is
	// configured, otherwise the in-process ledger for local development.
	var gateway ledger.Gateway
	if cfg.EthRPCURL != "" {
		ethGateway, err := ledger.NewEthGateway(cfg.EthRPCURL, cfg.ChainID, cfg.OperatorKey, cfg.VaultAddress, cfg.TokenAddresses)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect ledger gateway")
		}
		gateway = ethGateway
		zlog.Info().Str("rpc", cfg.EthRPCURL).Str("operator", ethGateway.Operator()).Msg("using on-chain ledger")
	} else {
		gateway = ledger.NewMemGateway(devOperator)
		zlog.Warn().Msg("no ETH_RPC_URL configured, using in-memory ledger")
	}

	var redisCache *cache.RedisClient
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedisClient(cfg.RedisAddr)
		defer redisCache.Close()
	}

	store := orderbook.NewStore(db)
	executor := settlement.NewExecutor(gateway, cfg.PaymentAsset)
	engine := matching.NewEngine(store, executor)

	authService := auth.NewService(cfg.JWTSecret, db)
	authHandlers := auth.NewGinHandlers(authService)

	tradingService := trading.NewService(store, engine, gateway, cfg, redisCache)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	tradesService := trades.NewService(db)
	tradesHandlers := trades.NewGinHandlers(tradesService)

	// Background sweep keeps the book converging even when triggered
	// passes fail.
	processor := matching.NewProcessor(store, engine, time.Duration(cfg.MatchIntervalMs)*time.Millisecond)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go processor.Start(processorCtx)

	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, cfg, authHandlers, tradingHandlers, tradesHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers, grouped by
// authentication requirement.
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	tradesHandlers *trades.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Authenticated user routes
		user := v1.Group("")
		user.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			user.POST("/orders", tradingHandlers.CreateOrderHandler())
			user.DELETE("/orders/:order_id", tradingHandlers.CancelOrderHandler())
			user.GET("/orders", tradingHandlers.ListOrdersHandler())
			user.GET("/orderbook/:symbol", tradingHandlers.OrderBookHandler())
			user.GET("/balances", tradingHandlers.BalancesHandler())
			user.GET("/trades/:symbol", tradesHandlers.ListByAssetHandler())
			user.GET("/trades", tradesHandlers.ListMineHandler())
			user.GET("/markets/:symbol/stats", tradesHandlers.MarketStatsHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.JWTSecret))
		{
			internal.POST("/matching/:symbol", tradingHandlers.RunMatchingHandler())
		}
	}
}
