package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RFQ statuses
const (
	RFQOpen    = "open"
	RFQClosed  = "closed"
	RFQAwarded = "awarded"
	RFQExpired = "expired"
)

// Quote statuses
const (
	QuoteSubmitted = "submitted"
	QuoteAccepted  = "accepted"
	QuoteRejected  = "rejected"
)

// RFQ is a buyer-submitted request for quotation
type RFQ struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Reference        string           `gorm:"size:20;uniqueIndex;not null" json:"reference"`
	BuyerID          uint             `gorm:"index;not null" json:"buyer_id"`
	CategoryID       uint             `gorm:"index;not null" json:"category_id"`
	Category         *Category        `json:"category,omitempty"`
	Title            string           `gorm:"size:200;not null" json:"title"`
	Description      string           `gorm:"size:4000" json:"description,omitempty"`
	Quantity         float64          `gorm:"not null" json:"quantity"`
	Unit             string           `gorm:"size:30" json:"unit,omitempty"`
	Budget           *decimal.Decimal `gorm:"type:decimal(20,2)" json:"budget,omitempty"`
	DeliveryLocation string           `gorm:"size:255" json:"delivery_location,omitempty"`
	Deadline         time.Time        `gorm:"index;not null" json:"deadline"`
	Status           string           `gorm:"size:20;not null;default:open;index" json:"status"`
	AwardedQuoteID   *uint            `json:"awarded_quote_id,omitempty"`
	Quotes           []Quote          `json:"quotes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Quote is a supplier's offer against an RFQ
type Quote struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RFQID          uint            `gorm:"column:rfq_id;uniqueIndex:idx_quote_rfq_supplier;not null" json:"rfq_id"`
	SupplierUserID uint            `gorm:"uniqueIndex:idx_quote_rfq_supplier;not null" json:"supplier_user_id"`
	Price          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	DeliveryDays   int             `gorm:"not null" json:"delivery_days"`
	Notes          string          `gorm:"size:2000" json:"notes,omitempty"`
	Status         string          `gorm:"size:20;not null;default:submitted" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName keeps the table name readable instead of gorm's default "rf_qs"
func (RFQ) TableName() string {
	return "rfqs"
}
