package trades

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vaultex/exchange-api/internal/types"
	"github.com/vaultex/exchange-api/pkg/response"
	"gorm.io/gorm"
)

const defaultListLimit = 100

// Service serves the read side of the trade ledger: history and per-asset
// market stats. Trades are append-only; nothing here mutates.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// ListByAsset returns recent trades for one asset, newest first.
func (s *Service) ListByAsset(assetSymbol string) ([]types.Trade, error) {
	return s.db.GetTradesByAsset(assetSymbol, defaultListLimit)
}

// ListByUser returns trades where the user was buyer or seller, newest first.
func (s *Service) ListByUser(address string) ([]types.Trade, error) {
	return s.db.GetTradesByUser(address)
}

// MarketStats aggregates last price, 24h volume and trade count for an asset.
func (s *Service) MarketStats(assetSymbol string) (*types.MarketStats, error) {
	last, err := s.db.GetLastTrade(assetSymbol)
	if err != nil {
		return nil, err
	}

	stats := &types.MarketStats{
		AssetSymbol: assetSymbol,
		UpdatedAt:   time.Now(),
	}
	if last != nil {
		stats.LastPrice = last.Price
	}

	volume, count, err := s.db.GetVolumeSince(assetSymbol, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats.Volume24h = volume
	stats.TradeCount = count
	return stats, nil
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetTradesByAsset(assetSymbol string, limit int) ([]types.Trade, error) {
	var trades []types.Trade
	q := d.db.Where("asset_symbol = ?", assetSymbol).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("%w: trades by asset: %v", types.ErrPersistence, err)
	}
	return trades, nil
}

func (d *Database) GetTradesByUser(address string) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("buyer_address = ? OR seller_address = ?", address, address).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("%w: trades by user: %v", types.ErrPersistence, err)
	}
	return trades, nil
}

// GetLastTrade returns the most recent trade for the asset, or nil when the
// asset has never traded.
func (d *Database) GetLastTrade(assetSymbol string) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.
		Where("asset_symbol = ?", assetSymbol).
		Order("created_at DESC").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: last trade: %v", types.ErrPersistence, err)
	}
	return &trade, nil
}

func (d *Database) GetVolumeSince(assetSymbol string, since time.Time) (float64, int64, error) {
	type row struct {
		Volume float64
		Count  int64
	}
	var r row
	err := d.db.Model(&types.Trade{}).
		Select("COALESCE(SUM(quantity), 0) AS volume, COUNT(*) AS count").
		Where("asset_symbol = ? AND created_at >= ?", assetSymbol, since).
		Scan(&r).Error
	if err != nil {
		return 0, 0, fmt.Errorf("%w: volume since: %v", types.ErrPersistence, err)
	}
	return r.Volume, r.Count, nil
}

// GinHandlers contains HTTP handlers for trade history endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListByAssetHandler handles GET /trades/:symbol.
func (h *GinHandlers) ListByAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.ListByAsset(c.Param("symbol"))
		response.Handle(c, trades, err)
	}
}

// ListMineHandler handles GET /trades for the authenticated user.
func (h *GinHandlers) ListMineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			response.Unauthorized(c, "missing wallet address in token")
			return
		}
		trades, err := h.service.ListByUser(address)
		response.Handle(c, trades, err)
	}
}

// MarketStatsHandler handles GET /markets/:symbol/stats.
func (h *GinHandlers) MarketStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.service.MarketStats(c.Param("symbol"))
		response.Handle(c, stats, err)
	}
}
