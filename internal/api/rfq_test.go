package api_test

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bell24h/internal/domain"
	"bell24h/internal/notify"
	"bell24h/internal/testutil"
)

type rfqResponse struct {
	RFQ        domain.RFQ `json:"rfq"`
	QuoteCount int64      `json:"quote_count"`
}

type rfqListResponse struct {
	RFQs  []domain.RFQ `json:"rfqs"`
	Total int64        `json:"total"`
}

func createRFQ(t *testing.T, s *testServer, buyer *domain.User, categoryID uint, title string) domain.RFQ {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/rfqs", buyer, map[string]any{
		"title": title, "category_id": categoryID, "quantity": 500, "unit": "kg", "budget": "125000",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[rfqResponse](t, rr).RFQ
}

func TestCreateRFQ(t *testing.T) {
	s := newTestServer(t)
	buyer := testutil.CreateUser(t, s.db, "buyer", domain.RoleBuyer)
	supplier := testutil.CreateUser(t, s.db, "supplier", domain.RoleSupplier)
	steel := createCategory(t, s.db, "Steel")

	rfq := createRFQ(t, s, buyer, steel.ID, "TMT bars")
	assert.Regexp(t, regexp.MustCompile(`^RFQ-[0-9A-F]{8}$`), rfq.Reference)
	assert.Equal(t, domain.RFQOpen, rfq.Status)
	assert.Equal(t, buyer.ID, rfq.BuyerID)
	assert.WithinDuration(t, time.Now().Add(14*24*time.Hour), rfq.Deadline, time.Minute)
	require.NotNil(t, rfq.Budget)
	assert.True(t, rfq.Budget.Equal(dec("125000")))

	testCases := []struct {
		name           string
		user           *domain.User
		body           map[string]any
		expectedStatus int
	}{
		{name: "Anonymous", user: nil, body: map[string]any{"title": "x", "category_id": steel.ID, "quantity": 1}, expectedStatus: http.StatusUnauthorized},
		{name: "Supplier cannot post", user: supplier, body: map[string]any{"title": "x", "category_id": steel.ID, "quantity": 1}, expectedStatus: http.StatusForbidden},
		{name: "Missing title", user: buyer, body: map[string]any{"category_id": steel.ID, "quantity": 1}, expectedStatus: http.StatusBadRequest},
		{name: "Zero quantity", user: buyer, body: map[string]any{"title": "x", "category_id": steel.ID, "quantity": 0}, expectedStatus: http.StatusBadRequest},
		{name: "Unknown category", user: buyer, body: map[string]any{"title": "x", "category_id": 999, "quantity": 1}, expectedStatus: http.StatusBadRequest},
		{name: "Negative budget", user: buyer, body: map[string]any{"title": "x", "category_id": steel.ID, "quantity": 1, "budget": -5}, expectedStatus: http.StatusBadRequest},
		{name: "Past deadline", user: buyer, body: map[string]any{"title": "x", "category_id": steel.ID, "quantity": 1, "deadline": time.Now().Add(-time.Hour)}, expectedStatus: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/rfqs", tc.user, tc.body)
			assert.Equal(t, tc.expectedStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestListRFQs(t *testing.T) {
	s := newTestServer(t)
	buyer := testutil.CreateUser(t, s.db, "buyer", domain.RoleBuyer)
	other := testutil.CreateUser(t, s.db, "other", domain.RoleBuyer)
	steel := createCategory(t, s.db, "Steel")
	cement := createCategory(t, s.db, "Cement")

	createRFQ(t, s, buyer, steel.ID, "TMT bars")
	createRFQ(t, s, buyer, cement.ID, "OPC 53")
	closed := createRFQ(t, s, other, steel.ID, "Angles")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, fmt.Sprintf("/api/rfqs/%d/close", closed.ID), other, nil).Code)

	list := func(path string, user *domain.User) rfqListResponse {
		rr := s.do(t, http.MethodGet, path, user, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		return decode[rfqListResponse](t, rr)
	}

	assert.Equal(t, int64(3), list("/api/rfqs", nil).Total)
	assert.Equal(t, int64(2), list("/api/rfqs?status=open", nil).Total)
	assert.Equal(t, int64(2), list(fmt.Sprintf("/api/rfqs?category_id=%d", steel.ID), nil).Total)
	assert.Equal(t, int64(1), list("/api/rfqs?mine=true", other).Total)

	page := list("/api/rfqs?page=1&page_size=1", nil)
	assert.Len(t, page.RFQs, 1)
	assert.Equal(t, "Angles", page.RFQs[0].Title, "newest first")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/rfqs?mine=true", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/rfqs?status=bogus", nil, nil).Code)
}

func TestQuoteAndAward(t *testing.T) {
	s := newTestServer(t)
	buyer := testutil.CreateUser(t, s.db, "buyer", domain.RoleBuyer)
	first := testutil.CreateUser(t, s.db, "first", domain.RoleSupplier)
	second := testutil.CreateUser(t, s.db, "second", domain.RoleSupplier)
	late := testutil.CreateUser(t, s.db, "late", domain.RoleSupplier)
	rfq := createRFQ(t, s, buyer, createCategory(t, s.db, "Steel").ID, "TMT bars")
	base := fmt.Sprintf("/api/rfqs/%d", rfq.ID)

	quote := func(user *domain.User, price any) domain.Quote {
		rr := s.do(t, http.MethodPost, base+"/quotes", user, map[string]any{"price": price, "delivery_days": 7})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		return decode[struct {
			Quote domain.Quote `json:"quote"`
		}](t, rr).Quote
	}
	q1 := quote(first, "118000")
	q2 := quote(second, 121500.5)

	t.Run("Duplicate quote", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/quotes", first, map[string]any{"price": 1, "delivery_days": 1})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Buyers cannot quote", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/quotes", buyer, map[string]any{"price": 1, "delivery_days": 1})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Zero price", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/quotes", late, map[string]any{"price": 0, "delivery_days": 1})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Buyer gets the price, topic subscribers do not", func(t *testing.T) {
		var notes []domain.Notification
		require.NoError(t, s.db.Where("user_id = ? AND type = ?", buyer.ID, domain.NotifyRFQQuote).Find(&notes).Error)
		assert.Len(t, notes, 2)

		var direct, topic []notify.Envelope
		for _, env := range s.publisher.Envelopes() {
			if env.Topic != "" {
				assert.Zero(t, env.UserID, "topic events are never addressed to a user")
				topic = append(topic, env)
			} else {
				direct = append(direct, env)
			}
		}
		require.Len(t, direct, 2)
		assert.Equal(t, buyer.ID, direct[0].UserID)
		assert.Contains(t, direct[0].Notification.Message, "118000.00")

		require.Len(t, topic, 2)
		for _, env := range topic {
			assert.Equal(t, notify.RFQTopic(rfq.ID), env.Topic)
			assert.Equal(t, domain.NotifyRFQQuote, env.Notification.Type)
			assert.NotContains(t, env.Notification.Message, "118000")
			assert.NotContains(t, env.Notification.Message, "121500")
			assert.NotContains(t, env.Notification.Message, "TMT bars")
		}
	})

	t.Run("Quotes are visible to the owner only", func(t *testing.T) {
		anon := decode[rfqResponse](t, s.do(t, http.MethodGet, base, nil, nil))
		assert.Equal(t, int64(2), anon.QuoteCount)
		assert.Empty(t, anon.RFQ.Quotes)

		owner := decode[rfqResponse](t, s.do(t, http.MethodGet, base, buyer, nil))
		require.Len(t, owner.RFQ.Quotes, 2)
		assert.Equal(t, q1.ID, owner.RFQ.Quotes[0].ID, "cheapest first")
	})

	t.Run("Only the owner awards", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/award", first, map[string]any{"quote_id": q1.ID})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Quote must belong to the RFQ", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/award", buyer, map[string]any{"quote_id": 9999})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Award", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/award", buyer, map[string]any{"quote_id": q2.ID})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var stored domain.RFQ
		require.NoError(t, s.db.Preload("Quotes").First(&stored, rfq.ID).Error)
		assert.Equal(t, domain.RFQAwarded, stored.Status)
		require.NotNil(t, stored.AwardedQuoteID)
		assert.Equal(t, q2.ID, *stored.AwardedQuoteID)
		for _, q := range stored.Quotes {
			if q.ID == q2.ID {
				assert.Equal(t, domain.QuoteAccepted, q.Status)
			} else {
				assert.Equal(t, domain.QuoteRejected, q.Status)
			}
		}

		var won int64
		require.NoError(t, s.db.Model(&domain.Notification{}).Where("user_id = ? AND type = ?", second.ID, domain.NotifyRFQAwarded).Count(&won).Error)
		assert.Equal(t, int64(1), won)

		envs := s.publisher.Envelopes()
		var awarded []notify.Envelope
		for _, env := range envs {
			if env.Notification.Type == domain.NotifyRFQAwarded {
				awarded = append(awarded, env)
			}
		}
		require.Len(t, awarded, 2)
		assert.Equal(t, second.ID, awarded[0].UserID)
		assert.Empty(t, awarded[0].Topic)
		assert.Zero(t, awarded[1].UserID)
		assert.Equal(t, notify.RFQTopic(rfq.ID), awarded[1].Topic)
		assert.NotContains(t, awarded[1].Notification.Message, "Your quote")
	})

	t.Run("Awarded RFQs take no more quotes or awards", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, base+"/quotes", late, map[string]any{"price": 100, "delivery_days": 3})
		assert.Equal(t, http.StatusConflict, rr.Code)
		rr = s.do(t, http.MethodPost, base+"/award", buyer, map[string]any{"quote_id": q1.ID})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestCloseRFQ(t *testing.T) {
	s := newTestServer(t)
	buyer := testutil.CreateUser(t, s.db, "buyer", domain.RoleBuyer)
	stranger := testutil.CreateUser(t, s.db, "stranger", domain.RoleBuyer)
	rfq := createRFQ(t, s, buyer, createCategory(t, s.db, "Steel").ID, "TMT bars")
	path := fmt.Sprintf("/api/rfqs/%d/close", rfq.ID)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, path, stranger, nil).Code)

	rr := s.do(t, http.MethodPost, path, buyer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.RFQClosed, decode[rfqResponse](t, rr).RFQ.Status)

	envs := s.publisher.Envelopes()
	require.Len(t, envs, 1)
	assert.Zero(t, envs[0].UserID, "closing only reaches topic subscribers")
	assert.Equal(t, notify.RFQTopic(rfq.ID), envs[0].Topic)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, path, buyer, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/rfqs/9999/close", buyer, nil).Code)
}
