// Package payment requests bank payouts from RazorpayX.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Payout modes accepted by RazorpayX
const (
	ModeIMPS = "IMPS"
	ModeNEFT = "NEFT"
	ModeRTGS = "RTGS"
	ModeUPI  = "UPI"
)

// PayoutRequest describes a payout from the business account to a fund account
type PayoutRequest struct {
	FundAccountID string
	Amount        decimal.Decimal // Rupees; converted to paise on the wire
	Mode          string
	Reference     string // Idempotency key and reference_id
	Narration     string
}

// Payout is the gateway's view of a payout
type Payout struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
	UTR         string `json:"utr,omitempty"`
}

// Gateway creates payouts
type Gateway interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

// GatewayError is a non-2xx answer from the payout API
type GatewayError struct {
	Status      int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payout gateway: %d %s: %s", e.Status, e.Code, e.Description)
}

// Failed reports whether the gateway reports the payout as refused or reversed
func (p *Payout) Failed() bool {
	switch p.Status {
	case "rejected", "failed", "reversed", "cancelled":
		return true
	}
	return false
}

// IsRejection reports whether err is a definite refusal. A 4xx answer means no payout exists
// under the idempotency key; transport errors and 5xx answers leave the outcome unknown.
func IsRejection(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Status >= 400 && gwErr.Status < 500
}

// ValidMode reports whether mode is a payout mode RazorpayX accepts
func ValidMode(mode string) bool {
	switch strings.ToUpper(mode) {
	case ModeIMPS, ModeNEFT, ModeRTGS, ModeUPI:
		return true
	}
	return false
}

// ToPaise converts a rupee amount to integer paise
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Sandbox settles every payout immediately without contacting a bank. It is used when no
// RazorpayX credentials are configured.
type Sandbox struct{}

// CreatePayout returns a processed payout with a generated id
func (Sandbox) CreatePayout(_ context.Context, req PayoutRequest) (*Payout, error) {
	payout := &Payout{
		ID:          "pout_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Status:      "processed",
		Amount:      ToPaise(req.Amount),
		ReferenceID: req.Reference,
	}
	logrus.WithFields(logrus.Fields{
		"payout_id": payout.ID,
		"reference": req.Reference,
		"amount":    req.Amount.StringFixed(2),
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("Sandbox payout settled")
	return payout, nil
}
