package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a simple HTTP client for the food truck ledger API.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// MenuItem represents a catalog entry returned by the API.
type MenuItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Inventory   int64  `json:"inventory"`
	ItemType    string `json:"item_type"`
	IsAvailable bool   `json:"is_available"`
}

// OrderLine is one position of an order.
type OrderLine struct {
	ItemID    int64 `json:"item_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Order represents an order returned by the API.
type Order struct {
	ID         int64       `json:"id"`
	Customer   string      `json:"customer"`
	Lines      []OrderLine `json:"lines"`
	TotalPrice int64       `json:"total_price"`
	PlacedAt   time.Time   `json:"placed_at"`
	Fulfilled  bool        `json:"fulfilled"`
}

// New constructs a client with baseURL, API key and extra header.
func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetMenu returns the full catalog.
func (c *Client) GetMenu(ctx context.Context) ([]MenuItem, error) {
	endpoint := fmt.Sprintf("%s/api/v1/menu", c.baseURL)
	cacheKey := "client:menu"
	var wrap struct {
		Items []MenuItem `json:"items"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Items, nil
	}

	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Items, nil
}

// PlaceOrder submits a paid order and returns the assigned order ID.
func (c *Client) PlaceOrder(ctx context.Context, itemIDs, quantities []int64, amountPaid int64) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders", c.baseURL)
	body := struct {
		ItemIDs    []int64 `json:"item_ids"`
		Quantities []int64 `json:"quantities"`
		AmountPaid int64   `json:"amount_paid"`
	}{ItemIDs: itemIDs, Quantities: quantities, AmountPaid: amountPaid}

	var resp struct {
		OrderID int64 `json:"order_id"`
	}
	if err := c.doPost(ctx, endpoint, body, &resp); err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

// GetOrder fetches a single order by ID.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders/%d", c.baseURL, orderID)
	var order Order
	if err := c.doGet(ctx, endpoint, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderCount returns the number of orders ever placed.
func (c *Client) OrderCount(ctx context.Context) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders/count", c.baseURL)
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// TreasuryBalance returns the current treasury balance.
func (c *Client) TreasuryBalance(ctx context.Context) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/treasury", c.baseURL)
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// Owner returns the configured owner address.
func (c *Client) Owner(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/owner", c.baseURL)
	var resp struct {
		Owner string `json:"owner"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	return resp.Owner, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

// APIError carries the HTTP status and machine code returned by the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	}
	return apiErr
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
