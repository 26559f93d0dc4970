package domain

import "time"

// Notification types
const (
	NotifyRFQQuote   = "rfq_quote"
	NotifyRFQAwarded = "rfq_awarded"
	NotifyRFQExpired = "rfq_expired"
	NotifyWallet     = "wallet"
	NotifyEscrow     = "escrow"
	NotifyKYC        = "kyc"
	NotifySystem     = "system"
)

// Notification represents notifications sent to users
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	Type      string     `gorm:"size:30;not null" json:"type"`
	Title     string     `gorm:"size:200" json:"title"`
	Message   string     `gorm:"size:1000" json:"message"`
	RFQID     *uint      `gorm:"column:rfq_id;index" json:"rfq_id,omitempty"`
	IsRead    bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
