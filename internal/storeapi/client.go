package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/transport"
)

// Endpoint paths, relative to the store URL.
const (
	pathCart         = "/store/cart"
	pathSync         = "/store/cart/sync"
	pathUpdateCust   = "/store/cart/update-customer"
	pathSelectRate   = "/store/cart/select-shipping-rate"
	pathCoupons      = "/store/cart/coupons"
	pathPromoCoupons = "/store/coupons"
	pathConfig       = "/config"
)

const (
	defaultTimeout = 30 * time.Second
	serviceName    = "pricing backend"
)

// userAgent identifies this client to the backend.
// Required: storefront CDNs rate-limit requests without a User-Agent.
const userAgent = "Storefront-Core/1.0"

// Config holds client configuration.
type Config struct {
	adapter.Config

	// CartToken resumes an existing backend session. Empty starts a new one.
	CartToken string
	Timeout   time.Duration
	Logger    *slog.Logger

	// HTTPClient overrides the default Chrome-fingerprint client (tests).
	HTTPClient *http.Client
}

// Client implements adapter.Backend for a Store API style backend.
//
// The backend binds its cart session to the Cart-Token header. The client
// mints a token up front so concurrent first requests share one session, and
// adopts any replacement token the backend returns.
type Client struct {
	httpClient *http.Client
	storeURL   string
	apiKey     string
	logger     *slog.Logger

	mu        sync.RWMutex
	cartToken string
}

// New creates a client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	u, err := url.Parse(cfg.StoreURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid store URL %q", cfg.StoreURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport.NewChromeTransport(timeout),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := cfg.CartToken
	if token == "" {
		token = generateCartToken()
	}

	return &Client{
		httpClient: httpClient,
		storeURL:   strings.TrimSuffix(cfg.StoreURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
		cartToken:  token,
	}, nil
}

// generateCartToken creates a random token for a new backend session.
func generateCartToken() string {
	return uuid.NewString()
}

// CartToken returns the session token currently in use.
func (c *Client) CartToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cartToken
}

// GetCart fetches the remote cart.
func (c *Client) GetCart(ctx context.Context, hint model.PaymentMethod) (*model.RemoteCart, error) {
	return c.doCart(ctx, http.MethodGet, pathCart, nil, hint)
}

// SyncItems replaces the remote cart contents.
func (c *Client) SyncItems(ctx context.Context, items []adapter.SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
	return c.doCart(ctx, http.MethodPost, pathSync, SyncRequest{Items: SyncItemsFromAdapter(items)}, hint)
}

// UpdateCustomer sets shipping and billing addresses.
func (c *Client) UpdateCustomer(ctx context.Context, req *adapter.CustomerUpdate) (*model.RemoteCart, error) {
	if req == nil {
		return nil, model.NewValidationError("address", "is required")
	}
	body := CustomerRequest{
		ShippingAddress: AddressFromModel(req.ShippingAddress),
		BillingAddress:  AddressFromModel(req.BillingAddress),
	}
	return c.doCart(ctx, http.MethodPost, pathUpdateCust, body, "")
}

// SelectShippingRate selects a shipping rate by id.
func (c *Client) SelectShippingRate(ctx context.Context, rateID string) (*model.RemoteCart, error) {
	if rateID == "" {
		return nil, model.NewValidationError("rate_id", "is required")
	}
	return c.doCart(ctx, http.MethodPost, pathSelectRate, SelectRateRequest{RateID: rateID}, "")
}

// ApplyCoupon applies a coupon code.
func (c *Client) ApplyCoupon(ctx context.Context, code string) (*model.RemoteCart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("code", "is required")
	}
	return c.doCart(ctx, http.MethodPost, pathCoupons, CouponRequest{Code: code}, "")
}

// RemoveCoupon removes a coupon code.
func (c *Client) RemoveCoupon(ctx context.Context, code string) (*model.RemoteCart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("code", "is required")
	}
	return c.doCart(ctx, http.MethodDelete, pathCoupons+"/"+url.PathEscape(code), nil, "")
}

// ListCoupons returns the promotable coupons.
func (c *Client) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	var coupons []PromoCoupon
	if err := c.do(ctx, http.MethodGet, pathPromoCoupons, nil, "", &coupons); err != nil {
		return nil, err
	}
	return PromoToModel(coupons), nil
}

// AppConfig returns the fallback pricing constants.
func (c *Client) AppConfig(ctx context.Context) (*model.AppConfig, error) {
	var cfg ConfigResponse
	if err := c.do(ctx, http.MethodGet, pathConfig, nil, "", &cfg); err != nil {
		return nil, err
	}
	appCfg, err := ConfigToModel(&cfg)
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, err)
	}
	return appCfg, nil
}

func (c *Client) doCart(ctx context.Context, method, path string, body any, hint model.PaymentMethod) (*model.RemoteCart, error) {
	var cart CartResponse
	if err := c.do(ctx, method, path, body, hint, &cart); err != nil {
		return nil, err
	}
	return CartToModel(&cart), nil
}

// do executes one request and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, body any, hint model.PaymentMethod, out any) error {
	var reader io.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s body: %w", path, err)
		}
		reader = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.storeURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	if err := c.setStoreAPIHeaders(req, hint); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	c.adoptCartToken(resp.Header.Get("Cart-Token"))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading %s response: %w", path, err))
	}

	c.logger.DebugContext(ctx, "store api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("parsing %s response: %w", path, err))
	}
	return nil
}

// setStoreAPIHeaders sets session, auth and hint headers.
func (c *Client) setStoreAPIHeaders(req *http.Request, hint model.PaymentMethod) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cart-Token", c.CartToken())
	if c.apiKey != "" {
		req.Header.Set("X-Store-Key", c.apiKey)
	}

	h, err := FormatHint(hint)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", HintHeader, err)
	}
	if h != "" {
		req.Header.Set(HintHeader, h)
	}
	return nil
}

// adoptCartToken switches to a token the backend issued in place of ours.
func (c *Client) adoptCartToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.cartToken {
		c.logger.Debug("cart token rotated by backend")
		c.cartToken = token
	}
}

// parseErrorResponse converts a backend error body to an APIError.
// Messages from 4xx refusals are kept verbatim (they may be HTML-escaped) so
// the caller can clean and show them.
func parseErrorResponse(statusCode int, body []byte) error {
	var apiErr ErrorResponse
	json.Unmarshal(body, &apiErr) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		if apiErr.Message != "" {
			return model.NewRemoteError(statusCode, apiErr.Code, apiErr.Message)
		}
		return model.NewNotFoundError("cart resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("pricing backend rejected credentials")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	}

	if statusCode < 500 {
		msg := apiErr.Message
		if msg == "" {
			msg = "request rejected"
		}
		return model.NewRemoteError(statusCode, apiErr.Code, msg)
	}
	return model.NewUpstreamError(serviceName,
		fmt.Errorf("status %d: %s - %s", statusCode, apiErr.Code, apiErr.Message))
}

// Verify Client implements Backend interface at compile time.
var _ adapter.Backend = (*Client)(nil)
