package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Escrow statuses
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

// Escrow holds funds of a payer wallet until they are released to the payee or refunded.
type Escrow struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	PayerWalletID uint            `gorm:"index;not null" json:"payer_wallet_id"`
	PayeeWalletID uint            `gorm:"index;not null" json:"payee_wallet_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	RFQID         *uint           `gorm:"column:rfq_id;index" json:"rfq_id,omitempty"`
	Status        string          `gorm:"size:20;not null;default:held" json:"status"`
	Description   string          `gorm:"size:255" json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
