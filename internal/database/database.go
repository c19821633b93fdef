package database

import (
	"fmt"

	"github.com/vaultex/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite store at path and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Migrate creates the schema and the indexes the matching engine depends on.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.User{},
		&types.Order{},
		&types.Trade{},
	); err != nil {
		return err
	}

	// Matching passes filter on (asset_symbol, status) every invocation.
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_orders_asset_status ON orders(asset_symbol, status)",
	).Error
}
