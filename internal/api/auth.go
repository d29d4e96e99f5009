package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"foodtruck/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	callerHeaderDefault   = "x-caller-address"
	clientKeyUnknown      = "unknown"

	permReadMenu    = "read:menu"
	permWriteMenu   = "write:menu"
	permPlaceOrders = "place:orders"
	permReadOrders  = "read:orders"
	permAdmin       = "admin"
)

type ctxKey int

const callerCtxKey ctxKey = 0

// callerFromContext возвращает адрес, от имени которого пришел запрос.
func callerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerCtxKey).(string); ok {
		return v
	}
	return ""
}

// HTTPAuth resolves API keys into caller addresses and applies per-key rate
// limits. The ledger itself decides what a resolved address may do; the
// permission list here only gates transport routes.
type HTTPAuth struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &HTTPAuth{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiter:         newRateLimiter(cfg),
	}
}

func (a *HTTPAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := ""

		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, "", err.Error())
				return
			}
			caller = client.Address
		} else {
			// режим без аутентификации: адрес берем из заголовка как есть
			caller = strings.ToLower(strings.TrimSpace(r.Header.Get(callerHeaderDefault)))
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, "", err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), callerCtxKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var (
	errPermissionDenied = fmt.Errorf("permission denied")
	errMissingHeaders   = fmt.Errorf("missing api key headers")
	errInvalidAPIKey    = fmt.Errorf("invalid api key")
	errInvalidExtra     = fmt.Errorf("invalid extra header")
	errRateLimited      = fmt.Errorf("rate limit exceeded")
)

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKeyHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingHeaders
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}

	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}

	if err := a.checkPermissions(client, r); err != nil {
		return config.APIClientKey{}, err
	}

	return client, nil
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}

	// If permissions list is empty, treat as allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}

	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/api/v1/admin/menu"):
		return permWriteMenu
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return permAdmin
	case path == "/api/v1/menu":
		return permReadMenu
	case path == "/api/v1/orders" && r.Method == http.MethodPost:
		return permPlaceOrders
	case strings.HasPrefix(path, "/api/v1/orders"):
		return permReadOrders
	default:
		return ""
	}
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.limiter.getLimiter(key)
	if !lim.Allow() {
		return errRateLimited
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
