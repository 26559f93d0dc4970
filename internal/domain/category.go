package domain

// Category groups RFQs and suppliers by product line
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:120;uniqueIndex;not null" json:"name"`
	Slug        string `gorm:"size:140;uniqueIndex;not null" json:"slug"`
	Description string `gorm:"size:500" json:"description,omitempty"`
	ParentID    *uint  `gorm:"index" json:"parent_id,omitempty"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
}
