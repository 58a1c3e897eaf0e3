// Package keyauth issues license keys through the KeyAuth seller API.
// Issue has no idempotency key: two calls mint two unrelated keys, so the
// caller must invoke it at most once per captured order.
package keyauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliamunaev/license-checkout/internal/apperr"
)

const maxResponseBytes = 64 << 10

// Config holds the issuance parameters.
type Config struct {
	BaseURL    string
	SellerKey  string
	Expiry     string // days
	Mask       string
	Level      string
	Format     string // "text" | "json"
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Binding is the optional buyer/device metadata attached to a new key.
type Binding struct {
	UserID string
	HWID   string
}

func (b Binding) note() string {
	var parts []string
	if b.UserID != "" {
		parts = append(parts, "user="+b.UserID)
	}
	if b.HWID != "" {
		parts = append(parts, "hwid="+b.HWID)
	}
	return strings.Join(parts, " ")
}

// Client calls the seller API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client with defaults matching the seller API's "add" call.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Expiry == "" {
		cfg.Expiry = "1"
	}
	if cfg.Level == "" {
		cfg.Level = "1"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: cfg.HTTPClient}
}

// Issue requests exactly one new license key.
func (c *Client) Issue(ctx context.Context, b Binding) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.issueURL(b), nil)
	if err != nil {
		return "", fmt.Errorf("keyauth: issue: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL, seller key included.
		return "", fmt.Errorf("keyauth: issue: %w: %w", apperr.ErrUpstream, redact(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("keyauth: issue: read body: %w: %w", apperr.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("keyauth: issue: status %d body=%q: %w", resp.StatusCode, excerpt(raw), apperr.ErrUpstream)
	}

	return parseKey(resp.Header.Get("Content-Type"), raw)
}

func (c *Client) issueURL(b Binding) string {
	q := url.Values{}
	q.Set("sellerkey", c.cfg.SellerKey)
	q.Set("type", "add")
	q.Set("expiry", c.cfg.Expiry)
	q.Set("mask", c.cfg.Mask)
	q.Set("level", c.cfg.Level)
	q.Set("amount", "1")
	q.Set("format", c.cfg.Format)
	if note := b.note(); note != "" {
		q.Set("note", note)
	}
	return c.cfg.BaseURL + "/api/seller/?" + q.Encode()
}

type issueResponse struct {
	Success *bool    `json:"success"`
	Message string   `json:"message"`
	Key     string   `json:"key"`
	Keys    []string `json:"keys"`
}

// parseKey accepts either a bare text token or the structured response.
// Error answers come back as JSON even when text was requested.
func parseKey(contentType string, raw []byte) (string, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", fmt.Errorf("keyauth: issue: empty response: %w", apperr.ErrLicenseIssuanceFailed)
	}

	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != "application/json" && !strings.HasPrefix(body, "{") {
		return body, nil
	}

	var r issueResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return "", fmt.Errorf("keyauth: issue: decode: %w: %w", apperr.ErrLicenseIssuanceFailed, err)
	}
	if r.Success != nil && !*r.Success {
		return "", fmt.Errorf("keyauth: issue: rejected: %q: %w", r.Message, apperr.ErrLicenseIssuanceFailed)
	}
	key := strings.TrimSpace(r.Key)
	if key == "" && len(r.Keys) > 0 {
		key = strings.TrimSpace(r.Keys[0])
	}
	if key == "" {
		return "", fmt.Errorf("keyauth: issue: no key in response: %w", apperr.ErrLicenseIssuanceFailed)
	}
	return key, nil
}

func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

func excerpt(raw []byte) string {
	if len(raw) > 256 {
		raw = raw[:256]
	}
	return string(raw)
}
