package domain

import "github.com/shopspring/decimal"

// Transaction types
const (
	TxDeposit       = "deposit"
	TxWithdraw      = "withdraw"
	TxTransfer      = "transfer"
	TxEscrowHold    = "escrow_hold"
	TxEscrowRelease = "escrow_release"
	TxEscrowRefund  = "escrow_refund"
)

// Transaction statuses
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// Transaction Model
type Transaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                             // Primary key
	FromWalletID *uint           `gorm:"index" json:"from_wallet_id"`                      // Foreign key to Wallet of the sender
	ToWalletID   *uint           `gorm:"index" json:"to_wallet_id"`                        // Foreign key to Wallet of the receiver
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`        // Amount of the transaction
	Type         string          `gorm:"size:20;index" json:"type"`                        // Transaction type
	Status       string          `gorm:"size:20;not null;default:completed" json:"status"` // Lifecycle status
	Reference    string          `gorm:"size:64;uniqueIndex" json:"reference"`             // Unique reference, doubles as payout idempotency key
	GatewayRef   string          `gorm:"size:64" json:"gateway_ref,omitempty"`             // RazorpayX payout id
	Description  string          `gorm:"size:255" json:"description,omitempty"`            // Free-form narration
	CreatedAt    int64           `gorm:"autoCreateTime:milli;index" json:"created_at"`     // Timestamp of creation in milliseconds
}
