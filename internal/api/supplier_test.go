package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bell24h/internal/domain"
	"bell24h/internal/testutil"
)

type supplierList struct {
	Suppliers []domain.Supplier `json:"suppliers"`
	Total     int64             `json:"total"`
	Cached    bool              `json:"cached"`
}

func TestSupplierProfiles(t *testing.T) {
	s := newTestServer(t)
	ravi := testutil.CreateUser(t, s.db, "ravi", domain.RoleSupplier)
	meera := testutil.CreateUser(t, s.db, "meera", domain.RoleSupplier)
	buyer := testutil.CreateUser(t, s.db, "buyer", domain.RoleBuyer)
	steel := createCategory(t, s.db, "Steel")
	cement := createCategory(t, s.db, "Cement")

	upsert := func(user *domain.User, body map[string]any) *domain.Supplier {
		rr := s.do(t, http.MethodPut, "/api/suppliers/profile", user, body)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[struct {
			Supplier domain.Supplier `json:"supplier"`
		}](t, rr)
		return &resp.Supplier
	}
	list := func(query string) supplierList {
		rr := s.do(t, http.MethodGet, "/api/suppliers"+query, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		return decode[supplierList](t, rr)
	}

	raviProfile := upsert(ravi, map[string]any{"company_name": "Ravi Steel", "city": "Pune", "category_ids": []uint{steel.ID, cement.ID}})
	assert.Len(t, raviProfile.Categories, 2)
	upsert(meera, map[string]any{"company_name": "Meera Cements", "category_ids": []uint{cement.ID}})

	assert.Equal(t, int64(2), list("").Total)
	assert.True(t, list("").Cached)

	t.Run("Filters", func(t *testing.T) {
		assert.Equal(t, int64(1), list(fmt.Sprintf("?category_id=%d", steel.ID)).Total)
		assert.Equal(t, int64(2), list(fmt.Sprintf("?category_id=%d", cement.ID)).Total)
		assert.Equal(t, int64(1), list("?q=meera").Total)
		assert.Equal(t, int64(0), list("?verified=true").Total)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/suppliers?verified=maybe", nil, nil).Code)
	})

	t.Run("Update replaces categories and drops the cache", func(t *testing.T) {
		updated := upsert(ravi, map[string]any{"company_name": "Ravi Steel Works", "category_ids": []uint{steel.ID}})
		assert.Equal(t, raviProfile.ID, updated.ID)
		require.Len(t, updated.Categories, 1)

		fresh := list("")
		assert.False(t, fresh.Cached)
		assert.Equal(t, int64(1), list(fmt.Sprintf("?category_id=%d", cement.ID)).Total)
	})

	t.Run("Get", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, fmt.Sprintf("/api/suppliers/%d", raviProfile.ID), nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Ravi Steel Works")
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/suppliers/9999", nil, nil).Code)
	})

	t.Run("Rejections", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/api/suppliers/profile", buyer, map[string]any{"company_name": "x"}).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/suppliers/profile", ravi, map[string]any{"company_name": "x", "category_ids": []uint{999}}).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/suppliers/profile", ravi, map[string]any{}).Code)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","redis":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}
