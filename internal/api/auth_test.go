package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"foodtruck/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authTestConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{
					Key:     "reader-key",
					Extra:   "reader-extra",
					Name:    "reader",
					Address: customerAddr,
					Permissions: []string{
						permReadMenu,
						permReadOrders,
					},
				},
				{Key: "full-key", Extra: "full-extra", Name: "full", Address: ownerAddr},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func authProbe(t *testing.T, auth *HTTPAuth, path, method, key, extra string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var caller string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = callerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("x-api-key", key)
		req.Header.Set("x-api-extra", extra)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, caller
}

func TestAuthResolvesCallerAddress(t *testing.T) {
	auth := NewHTTPAuth(authTestConfig())

	rec, caller := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "reader-key", "reader-extra")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, customerAddr, caller)
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	auth := NewHTTPAuth(authTestConfig())

	t.Run("MissingHeaders", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "nope", "reader-extra")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongExtra", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "reader-key", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthPermissions(t *testing.T) {
	auth := NewHTTPAuth(authTestConfig())

	t.Run("AllowedRoute", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/orders/0", http.MethodGet, "reader-key", "reader-extra")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("DeniedRoute", func(t *testing.T) {
		// у reader нет place:orders
		rec, _ := authProbe(t, auth, "/api/v1/orders", http.MethodPost, "reader-key", "reader-extra")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("DeniedAdminRoute", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/admin/withdraw", http.MethodPost, "reader-key", "reader-extra")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		rec, _ := authProbe(t, auth, "/api/v1/admin/withdraw", http.MethodPost, "full-key", "full-extra")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthDisabledUsesCallerHeader(t *testing.T) {
	cfg := authTestConfig()
	cfg.Auth.Enabled = false
	auth := NewHTTPAuth(cfg)

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, customerAddr, callerFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil)
	req.Header.Set("x-caller-address", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerKey(t *testing.T) {
	cfg := authTestConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}
	auth := NewHTTPAuth(cfg)

	var lastCode int
	for i := 0; i < 5; i++ {
		rec, _ := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "reader-key", "reader-extra")
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)

	// другой ключ не делит лимит с первым
	rec, _ := authProbe(t, auth, "/api/v1/menu", http.MethodGet, "full-key", "full-extra")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiredPermissionMapping(t *testing.T) {
	cases := []struct {
		path   string
		method string
		want   string
	}{
		{"/api/v1/menu", http.MethodGet, permReadMenu},
		{"/api/v1/admin/menu", http.MethodPost, permWriteMenu},
		{"/api/v1/admin/menu/0/inventory", http.MethodPut, permWriteMenu},
		{"/api/v1/orders", http.MethodPost, permPlaceOrders},
		{"/api/v1/orders/0", http.MethodGet, permReadOrders},
		{"/api/v1/orders/count", http.MethodGet, permReadOrders},
		{"/api/v1/admin/orders", http.MethodGet, permAdmin},
		{"/api/v1/admin/withdraw", http.MethodPost, permAdmin},
		{"/api/v1/owner", http.MethodGet, ""},
		{"/api/v1/treasury", http.MethodGet, ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, requiredPermission(req), tc.path)
	}
}
