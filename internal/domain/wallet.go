package domain

import "github.com/shopspring/decimal"

// Wallet Model
type Wallet struct {
	ID            uint            `gorm:"primaryKey" json:"id"`                                        // Primary key
	UserID        uint            `gorm:"uniqueIndex" json:"user_id"`                                  // Foreign key to User
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`        // Spendable balance
	EscrowBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"escrow_balance"` // Funds held for counterparties
	Currency      string          `gorm:"size:3;not null;default:INR" json:"currency"`                 // ISO currency code
}
