package orderbook

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vaultex/exchange-api/internal/types"
	"gorm.io/gorm"
)

// Store is the durable order and trade ledger.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert assigns an id, marks the order pending and persists it.
func (s *Store) Insert(order *types.Order) error {
	order.OrderID = uuid.New().String()
	order.Status = types.StatusPending
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("%w: insert order: %v", types.ErrPersistence, err)
	}
	return nil
}

// GetPendingByAsset returns open orders for the asset, oldest first, so equal
// price levels fill in FIFO order.
func (s *Store) GetPendingByAsset(assetSymbol string) ([]types.Order, error) {
	var orders []types.Order
	err := s.db.
		Where("asset_symbol = ? AND status IN ?", assetSymbol, []string{types.StatusPending, types.StatusPartial}).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load pending orders: %v", types.ErrPersistence, err)
	}
	return orders, nil
}

// PendingAssets lists the distinct assets that currently have open orders.
func (s *Store) PendingAssets() ([]string, error) {
	var symbols []string
	err := s.db.Model(&types.Order{}).
		Where("status IN ?", []string{types.StatusPending, types.StatusPartial}).
		Distinct().
		Pluck("asset_symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list pending assets: %v", types.ErrPersistence, err)
	}
	return symbols, nil
}

// GetOrder fetches one order by id. Returns (nil, nil) when absent.
func (s *Store) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := s.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get order: %v", types.ErrPersistence, err)
	}
	return &order, nil
}

// UpdateQuantityAndStatus applies a single-row update to the order's
// remaining quantity and status.
func (s *Store) UpdateQuantityAndStatus(orderID string, quantity float64, status string) error {
	result := s.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"quantity":   quantity,
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: update order %s: %v", types.ErrPersistence, orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s", types.ErrNotFound, orderID)
	}
	return nil
}

// MarkCancelled transitions an order to cancelled, but only when it belongs
// to ownerAddress and is still pending. Orders of other users and resolved
// orders report not-found rather than leaking state.
func (s *Store) MarkCancelled(orderID, ownerAddress string) error {
	result := s.db.Model(&types.Order{}).
		Where("order_id = ? AND user_address = ? AND status = ?", orderID, ownerAddress, types.StatusPending).
		Updates(map[string]interface{}{
			"status":     types.StatusCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: cancel order %s: %v", types.ErrPersistence, orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s", types.ErrNotFound, orderID)
	}
	return nil
}

// ListByOwner returns all of a user's orders, newest first.
func (s *Store) ListByOwner(ownerAddress string) ([]types.Order, error) {
	var orders []types.Order
	err := s.db.
		Where("user_address = ?", ownerAddress).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", types.ErrPersistence, err)
	}
	return orders, nil
}

// InsertTrade appends one settled trade to the ledger.
func (s *Store) InsertTrade(trade *types.Trade) error {
	trade.TradeID = uuid.New().String()
	trade.CreatedAt = time.Now()

	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("%w: insert trade: %v", types.ErrPersistence, err)
	}
	return nil
}

