package domain

import "time"

// User roles
const (
	RoleBuyer    = "buyer"    // Posts RFQs and pays suppliers
	RoleSupplier = "supplier" // Quotes on RFQs
	RoleAdmin    = "admin"    // Platform operator
)

// KYC statuses
const (
	KYCNone     = "none"
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCRejected = "rejected"
)

// User Model
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`                                                   // Primary key
	Name            string     `gorm:"size:120" json:"name"`                                                   // Display name
	Email           *string    `gorm:"size:191;uniqueIndex" json:"email,omitempty"`                            // Unique email, nullable for phone sign-ups
	Phone           *string    `gorm:"size:15;uniqueIndex" json:"phone,omitempty"`                             // Unique 10-digit mobile number
	Password        string     `gorm:"size:100" json:"-"`                                                      // Hashed password, empty for OTP-only users
	Role            string     `gorm:"size:20;not null;default:buyer" json:"role"`                             // Role: buyer, supplier or admin
	CompanyName     string     `gorm:"size:200" json:"company_name"`                                           // Registered business name
	KYCStatus       string     `gorm:"column:kyc_status;size:20;not null;default:none" json:"kyc_status"`      // KYC onboarding state
	GSTIN           string     `gorm:"column:gstin;size:15" json:"gstin,omitempty"`                            // GST identification number
	PAN             string     `gorm:"column:pan;size:10" json:"pan,omitempty"`                                // Permanent account number
	BusinessAddress string     `gorm:"size:500" json:"business_address,omitempty"`                             // Address submitted with KYC
	KYCReason       string     `gorm:"column:kyc_reason;size:500" json:"kyc_reason,omitempty"`                 // Rejection reason, if any
	KYCSubmittedAt  *time.Time `gorm:"column:kyc_submitted_at" json:"kyc_submitted_at,omitempty"`              // Last KYC submission
	Wallet          *Wallet    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"wallet,omitempty"` // One-to-one relationship with Wallet
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
