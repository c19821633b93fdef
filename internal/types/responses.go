package types

import "time"

// OrderBookResponse is the aggregated book view for one asset.
type OrderBookResponse struct {
	AssetSymbol string       `json:"asset_symbol"`
	Bids        []BookLevel  `json:"bids"`
	Asks        []BookLevel  `json:"asks"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// BookLevel aggregates open quantity at one price.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Orders   int     `json:"orders"`
}

// BalancesResponse lists a user's wallet and vault holdings per asset.
type BalancesResponse struct {
	UserAddress string         `json:"user_address"`
	Balances    []AssetBalance `json:"balances"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AssetBalance carries one asset's holdings as decimal strings.
type AssetBalance struct {
	AssetSymbol string `json:"asset_symbol"`
	Wallet      string `json:"wallet"`
	Vault       string `json:"vault"`
}

// MatchResult reports the outcome of one matching pass.
type MatchResult struct {
	Matched bool   `json:"matched"`
	Trade   *Trade `json:"trade,omitempty"`
}

// MarketStats is the per-asset trade summary served by the trades service.
type MarketStats struct {
	AssetSymbol string    `json:"asset_symbol"`
	LastPrice   float64   `json:"last_price"`
	Volume24h   float64   `json:"volume_24h"`
	TradeCount  int64     `json:"trade_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
