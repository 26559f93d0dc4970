package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RazorpayX talks to the RazorpayX payouts API
type RazorpayX struct {
	baseURL       string
	keyID         string
	keySecret     string
	accountNumber string
	client        *http.Client
}

// NewRazorpayX creates a payouts client. A nil httpClient gets a client with a 15s timeout.
func NewRazorpayX(baseURL, keyID, keySecret, accountNumber string, httpClient *http.Client) *RazorpayX {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RazorpayX{
		baseURL:       strings.TrimRight(baseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		accountNumber: accountNumber,
		client:        httpClient,
	}
}

type payoutBody struct {
	AccountNumber     string `json:"account_number"`
	FundAccountID     string `json:"fund_account_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Mode              string `json:"mode"`
	Purpose           string `json:"purpose"`
	QueueIfLowBalance bool   `json:"queue_if_low_balance"`
	ReferenceID       string `json:"reference_id"`
	Narration         string `json:"narration,omitempty"`
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreatePayout posts a payout; the transaction reference doubles as the idempotency key
func (r *RazorpayX) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	narration := req.Narration
	if len(narration) > 30 {
		narration = narration[:30] // RazorpayX caps narration at 30 characters
	}
	body, err := json.Marshal(payoutBody{
		AccountNumber:     r.accountNumber,
		FundAccountID:     req.FundAccountID,
		Amount:            ToPaise(req.Amount),
		Currency:          "INR",
		Mode:              strings.ToUpper(req.Mode),
		Purpose:           "payout",
		QueueIfLowBalance: true,
		ReferenceID:       req.Reference,
		Narration:         narration,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(r.keyID, r.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Payout-Idempotency", req.Reference)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payout gateway: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payout gateway: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			gwErr.Code = eb.Error.Code
			gwErr.Description = eb.Error.Description
		}
		return nil, gwErr
	}
	var payout Payout
	if err := json.Unmarshal(raw, &payout); err != nil {
		return nil, fmt.Errorf("payout gateway: decode payout: %w", err)
	}
	return &payout, nil // Callers check Failed for rejected payouts
}
