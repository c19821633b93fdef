package types

import (
	"time"

	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses. Filled and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusPartial   = "partial"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

// Settlement modes. Vault orders settle against custodial vault balances,
// approval orders settle via allowance-based transferFrom.
const (
	ModeVault    = "vault"
	ModeApproval = "approval"
)

type Order struct {
	gorm.Model  `json:"-"`
	OrderID     string    `gorm:"uniqueIndex" json:"order_id"`
	UserAddress string    `gorm:"index" json:"user_address"`
	AssetSymbol string    `gorm:"index" json:"asset_symbol"`
	Side        string    `json:"side"`     // buy or sell
	Quantity    float64   `json:"quantity"` // remaining unfilled quantity
	Price       float64   `json:"price"`    // limit price in payment-asset units
	Mode        string    `json:"mode"`     // vault or approval
	Status      string    `json:"status"`   // pending, partial, filled, cancelled
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Open reports whether the order can still participate in matching.
func (o *Order) Open() bool {
	return o.Status == StatusPending || o.Status == StatusPartial
}

// Trade is the append-only record of one successful settlement.
type Trade struct {
	gorm.Model    `json:"-"`
	TradeID       string    `gorm:"uniqueIndex" json:"trade_id"`
	AssetSymbol   string    `gorm:"index" json:"asset_symbol"`
	BuyerAddress  string    `gorm:"index" json:"buyer_address"`
	SellerAddress string    `gorm:"index" json:"seller_address"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	TotalAmount   float64   `json:"total_amount"`
	Mode          string    `json:"mode"`
	AssetTxHash   string    `json:"asset_tx_hash"`
	PaymentTxHash string    `json:"payment_tx_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

type User struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex" json:"address"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}
