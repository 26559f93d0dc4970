package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Token lifetime

	"bell24h/internal/domain" // Importing domain models
	"bell24h/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"         // Gin web framework
	"github.com/gin-gonic/gin/binding" // Body binding that can be replayed
	"github.com/sirupsen/logrus"       // Logging library
	"golang.org/x/crypto/bcrypt"       // Password hashing
	"gorm.io/gorm"                     // GORM ORM library
)

// PhoneOTPRequest starts a phone login
type PhoneOTPRequest struct {
	Phone string `json:"phone" binding:"required,phone_in"` // 10-digit Indian mobile number
}

// VerifyOTPRequest completes a phone login
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required,phone_in"`    // Phone the OTP was sent to
	OTP   string `json:"otp" binding:"required,len=6,numeric"` // Six digit code
}

// RegisterRequest creates an email account
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=120"`               // Display name
	Email    string `json:"email" binding:"required,email,max=191"`        // Login email
	Password string `json:"password" binding:"required,min=8,max=64"`      // Plain password, hashed before storage
	Role     string `json:"role" binding:"omitempty,oneof=buyer supplier"` // Defaults to buyer
	Company  string `json:"company" binding:"max=200"`                     // Business name
	Phone    string `json:"phone" binding:"omitempty,phone_in"`            // Optional mobile number
}

// LoginRequest authenticates an email account
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"` // Login email
	Password string `json:"password" binding:"required"`    // Plain password
}

// AuthResponse is returned by every successful login
type AuthResponse struct {
	Success   bool         `json:"success"`               // Always true
	Token     string       `json:"token"`                 // JWT token
	User      *domain.User `json:"user"`                  // Authenticated user
	IsNewUser bool         `json:"is_new_user,omitempty"` // Set when the phone login created the account
}

// OTPPhoneKey keys the OTP rate limiter by phone number, leaving the body readable for the handler
func OTPPhoneKey(c *gin.Context) string {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		return ""
	}
	if phone, ok := utils.NormalizePhone(req.Phone); ok {
		return "phone:" + phone
	}
	return ""
}

// maskPhone hides all but the last four digits
func maskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return strings.Repeat("X", len(phone)-4) + phone[len(phone)-4:]
}

// SendPhoneOTPHandler issues a login OTP. exposeOTP echoes the code back for non-production use.
func SendPhoneOTPHandler(otps *utils.OTPStore, exposeOTP bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PhoneOTPRequest // Bind JSON request to struct
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "A valid 10-digit mobile number is required"})
			return
		}
		phone, _ := utils.NormalizePhone(req.Phone) // Already validated by phone_in
		code, err := otps.Issue(c.Request.Context(), phone)
		if errors.Is(err, utils.ErrOTPCooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Please wait before requesting another OTP"})
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("phone", maskPhone(phone)).Error("Failed to issue OTP")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send OTP"})
			return
		}
		// Log the issue without the code
		logrus.WithFields(logrus.Fields{
			"phone":      maskPhone(phone),     // Masked phone
			"expires_in": otps.TTL().Seconds(), // Lifetime in seconds
			"timestamp":  time.Now().Format(time.RFC3339),
		}).Info("OTP issued")
		resp := gin.H{
			"success":    true,                                  // OTP was issued
			"message":    "OTP sent to +91 " + maskPhone(phone), // Human readable status
			"expires_in": int(otps.TTL().Seconds()),             // Seconds until the code expires
		}
		if exposeOTP {
			resp["demo_otp"] = code // No SMS provider outside production
		}
		c.JSON(http.StatusOK, resp)
	}
}

// VerifyPhoneOTPHandler checks the OTP and logs the user in, creating the account on first login
func VerifyPhoneOTPHandler(db *gorm.DB, otps *utils.OTPStore, jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyOTPRequest // Bind JSON request to struct
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Phone and 6-digit OTP are required"})
			return
		}
		phone, _ := utils.NormalizePhone(req.Phone)
		ctx := c.Request.Context()
		// Map OTP failures to status codes
		switch err := otps.Verify(ctx, phone, req.OTP); {
		case errors.Is(err, utils.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OTP expired or not requested"})
			return
		case errors.Is(err, utils.ErrOTPInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid OTP"})
			return
		case errors.Is(err, utils.ErrOTPAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed attempts, request a new OTP"})
			return
		case err != nil:
			logrus.WithError(err).WithField("phone", maskPhone(phone)).Error("OTP verification failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify OTP"})
			return
		}
		user, isNew, err := findOrCreatePhoneUser(db.WithContext(ctx), phone)
		if err != nil {
			logrus.WithError(err).WithField("phone", maskPhone(phone)).Error("Failed to load phone user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
			return
		}
		token, err := utils.GenerateJWT(user.ID, user.Role, jwtSecret, ttl)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "new_user": isNew}).Info("Phone login")
		c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, User: user, IsNewUser: isNew})
	}
}

// findOrCreatePhoneUser returns the user owning phone, creating a buyer account when none exists
func findOrCreatePhoneUser(db *gorm.DB, phone string) (*domain.User, bool, error) {
	var user domain.User
	err := db.Where("phone = ?", phone).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	user = domain.User{Phone: &phone, Role: domain.RoleBuyer, KYCStatus: domain.KYCNone}
	if err := db.Create(&user).Error; err != nil {
		// A concurrent login may have created it first
		if lookupErr := db.Where("phone = ?", phone).First(&user).Error; lookupErr == nil {
			return &user, false, nil
		}
		return nil, false, err
	}
	return &user, true, nil
}

// RegisterHandler creates an email account and returns a token for it
func RegisterHandler(db *gorm.DB, jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: name, valid email and an 8-64 character password are required"})
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email)) // Emails are unique case-insensitively
		role := req.Role
		if role == "" {
			role = domain.RoleBuyer // Default role
		}
		ctx := c.Request.Context()
		var taken int64 // Existing accounts with this email or phone
		query := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email)
		var phone *string
		if req.Phone != "" {
			p, _ := utils.NormalizePhone(req.Phone)
			phone = &p
			query = query.Or("phone = ?", p)
		}
		if err := query.Count(&taken).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register"})
			return
		}
		if taken > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email or phone already exists"})
			return
		}
		// Hash the password and create the user
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		user := domain.User{
			Name:        strings.TrimSpace(req.Name),
			Email:       &email,
			Phone:       phone,
			Password:    string(hash),
			Role:        role,
			CompanyName: strings.TrimSpace(req.Company),
			KYCStatus:   domain.KYCNone,
		}
		// Suppliers get an empty public profile in the same transaction
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err // Return error to rollback
			}
			if role != domain.RoleSupplier {
				return nil
			}
			company := user.CompanyName
			if company == "" {
				company = user.Name
			}
			return tx.Create(&domain.Supplier{UserID: user.ID, CompanyName: company}).Error
		})
		if err != nil {
			logrus.WithError(err).WithField("email", email).Error("Registration failed")
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email or phone already exists"})
			return
		}
		token, err := utils.GenerateJWT(user.ID, user.Role, jwtSecret, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User registered")
		c.JSON(http.StatusCreated, AuthResponse{Success: true, Token: token, User: &user})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(db *gorm.DB, jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
			// If user not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Phone-only accounts have no password
		if user.Password == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, user.Role, jwtSecret, ttl)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, User: &user})
	}
}

// MeHandler returns the authenticated user with their wallet
func MeHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var user domain.User
		if err := db.WithContext(c.Request.Context()).Preload("Wallet").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
