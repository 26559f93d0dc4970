package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayX_CreatePayout(t *testing.T) {
	var got payoutBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "withdraw_abc", r.Header.Get("X-Payout-Idempotency"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pout_123","status":"processing","amount":125050,"reference_id":"withdraw_abc"}`))
	}))
	defer srv.Close()

	client := NewRazorpayX(srv.URL+"/", "rzp_key", "rzp_secret", "7878780080316316", srv.Client())
	payout, err := client.CreatePayout(context.Background(), PayoutRequest{
		FundAccountID: "fa_1",
		Amount:        decimal.RequireFromString("1250.50"),
		Mode:          "imps",
		Reference:     "withdraw_abc",
		Narration:     "Bell24h wallet withdrawal for supplier",
	})
	require.NoError(t, err)
	assert.Equal(t, "pout_123", payout.ID)

	assert.Equal(t, int64(125050), got.Amount)
	assert.Equal(t, "IMPS", got.Mode)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "7878780080316316", got.AccountNumber)
	assert.Len(t, got.Narration, 30)
}

func TestRazorpayX_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The fund account id is invalid"}}`))
	}))
	defer srv.Close()

	client := NewRazorpayX(srv.URL, "k", "s", "acc", srv.Client())
	_, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: decimal.NewFromInt(1), Mode: ModeIMPS, Reference: "r"})

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.Status)
	assert.Equal(t, "BAD_REQUEST_ERROR", gwErr.Code)
}

func TestRazorpayX_RejectedPayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pout_9","status":"rejected"}`))
	}))
	defer srv.Close()

	client := NewRazorpayX(srv.URL, "k", "s", "acc", srv.Client())
	payout, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: decimal.NewFromInt(1), Mode: ModeUPI, Reference: "r"})
	require.NoError(t, err)
	assert.Equal(t, "pout_9", payout.ID)
	assert.True(t, payout.Failed())
}

func TestIsRejection(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Client error", err: &GatewayError{Status: http.StatusBadRequest}, expected: true},
		{name: "Wrapped client error", err: fmt.Errorf("withdraw: %w", &GatewayError{Status: http.StatusUnprocessableEntity}), expected: true},
		{name: "Server error", err: &GatewayError{Status: http.StatusBadGateway}, expected: false},
		{name: "Transport error", err: context.DeadlineExceeded, expected: false},
		{name: "No error", err: nil, expected: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsRejection(tc.err))
		})
	}
}

func TestPayoutFailed(t *testing.T) {
	for _, status := range []string{"rejected", "failed", "reversed", "cancelled"} {
		assert.True(t, (&Payout{Status: status}).Failed(), status)
	}
	for _, status := range []string{"queued", "pending", "processing", "processed"} {
		assert.False(t, (&Payout{Status: status}).Failed(), status)
	}
}

func TestToPaise(t *testing.T) {
	assert.Equal(t, int64(1025), ToPaise(decimal.RequireFromString("10.25")))
	assert.Equal(t, int64(100000), ToPaise(decimal.NewFromInt(1000)))
}

func TestSandbox(t *testing.T) {
	payout, err := Sandbox{}.CreatePayout(context.Background(), PayoutRequest{Amount: decimal.RequireFromString("10.25"), Reference: "ref"})
	require.NoError(t, err)
	assert.Equal(t, "processed", payout.Status)
	assert.Equal(t, int64(1025), payout.Amount)
	assert.Equal(t, "ref", payout.ReferenceID)
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode("imps"))
	assert.True(t, ValidMode("UPI"))
	assert.False(t, ValidMode("cash"))
}
