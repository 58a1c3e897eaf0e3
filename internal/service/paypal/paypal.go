// Package paypal is a thin client for the payment provider's checkout API.
//
// Every method performs exactly one outbound call bounded by the client
// timeout. Remote failures are returned as *APIError, which unwraps to
// apperr.ErrUpstream and, where the provider says so, to a more specific
// sentinel (not found, already captured).
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/iliamunaev/license-checkout/internal/apperr"
)

// StatusCompleted is the terminal successful state of an order or capture.
const StatusCompleted = "COMPLETED"

const maxResponseBytes = 1 << 20

// captureNamespace seeds deterministic capture request ids so a replayed
// capture call for the same order is deduplicated by the provider.
var captureNamespace = uuid.MustParse("6f1f4c58-52a4-4f8e-9a53-2f5e0c1b7d11")

// Config holds the client settings.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	ItemName     string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the checkout API.
type Client struct {
	baseURL   string
	returnURL string
	cancelURL string
	itemName  string
	timeout   time.Duration
	http      *http.Client
	creds     clientcredentials.Config
}

// New returns a Client. A nil HTTPClient gets one bounded by Timeout.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ItemName == "" {
		cfg.ItemName = "Software License Key"
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL:   base,
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
		itemName:  cfg.ItemName,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     base + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}
}

// AccessToken fetches a fresh bearer token. Tokens are not cached.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("paypal: access token: %w: %w", apperr.ErrUpstream, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("paypal: access token: empty token: %w", apperr.ErrUpstream)
	}
	return tok.AccessToken, nil
}

// CreateOrder submits a single-item CAPTURE order and returns the created order.
func (c *Client) CreateOrder(ctx context.Context, token string, in CreateOrderInput) (Order, error) {
	amount := money{CurrencyCode: in.Currency, Value: in.Value}
	payload := orderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitPayload{{
			CustomID: in.CustomID,
			Items: []itemPayload{{
				Name:        c.itemName,
				Description: "Your License Key will be delivered after payment.",
				Quantity:    "1",
				UnitAmount:  amount,
			}},
			Amount: amountPayload{
				CurrencyCode: in.Currency,
				Value:        in.Value,
				Breakdown:    breakdown{ItemTotal: amount},
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL: c.returnURL,
			CancelURL: c.cancelURL,
		},
	}

	var out Order
	err := c.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", token, payload, uuid.NewString(), &out)
	if err != nil {
		return Order{}, err
	}
	if out.ID == "" {
		return Order{}, fmt.Errorf("paypal: create order: missing id: %w", apperr.ErrUpstream)
	}
	return out, nil
}

// GetOrder looks up the current state of an order.
func (c *Client) GetOrder(ctx context.Context, token, orderID string) (Order, error) {
	var out Order
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "get order", http.MethodGet, path, token, nil, "", &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

// CaptureOrder finalizes payment for an approved order.
// The request id is derived from orderID, so repeating the call is safe.
func (c *Client) CaptureOrder(ctx context.Context, token, orderID string) (Order, error) {
	var out Order
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	requestID := CaptureRequestID(orderID)
	if err := c.do(ctx, "capture order", http.MethodPost, path, token, struct{}{}, requestID, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

// CaptureRequestID returns the idempotency key sent with a capture call.
func CaptureRequestID(orderID string) string {
	return uuid.NewSHA1(captureNamespace, []byte(orderID)).String()
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body any, requestID string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paypal: %s: encode: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("paypal: %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s: %w: %w", op, apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("paypal: %s: read body: %w: %w", op, apperr.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(op, resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paypal: %s: decode: %w: %w", op, apperr.ErrUpstream, err)
	}
	return nil
}
