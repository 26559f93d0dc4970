package domain

import "time"

// Supplier is the public business profile of a supplier user
type Supplier struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	CompanyName string     `gorm:"size:200;not null" json:"company_name"`
	Description string     `gorm:"size:2000" json:"description,omitempty"`
	City        string     `gorm:"size:100;index" json:"city,omitempty"`
	State       string     `gorm:"size:100" json:"state,omitempty"`
	Verified    bool       `gorm:"not null;default:false;index" json:"verified"`
	Rating      float64    `gorm:"not null;default:0" json:"rating"`
	Categories  []Category `gorm:"many2many:supplier_categories;" json:"categories"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
