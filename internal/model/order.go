// Package model defines the request and response payloads used by the API.
// It keeps transport-level types in one place for reuse.
package model

import "github.com/shopspring/decimal"

// CreateOrderRequest is the input payload for create-order.
// Price accepts either a JSON string ("10.00") or a JSON number.
type CreateOrderRequest struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	UserID   string          `json:"userID,omitempty"`
	HWID     string          `json:"hwid,omitempty"`
}

// CreateOrderResponse carries the provider-assigned order identifier.
type CreateOrderResponse struct {
	OrderID string `json:"orderID"`
}

// CaptureOrderRequest is the input payload for capture-order.
type CaptureOrderRequest struct {
	OrderID string `json:"orderID"`
	UserID  string `json:"userID,omitempty"`
	HWID    string `json:"hwid,omitempty"`
}

// CaptureOrderResponse carries the issued license key.
type CaptureOrderResponse struct {
	LicenseKey string `json:"licenseKey"`
	Message    string `json:"message,omitempty"` // set when the key was emailed
}

// ErrorResponse describes an error response.
type ErrorResponse struct {
	Error string `json:"error"`          // generic, human-readable
	Kind  string `json:"kind,omitempty"` // "invalid_request", "upstream_error", ...
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	InFlight int64  `json:"inflight"`
}

// StepResult captures the outcome of one orchestration step.
// It is logged, not returned to callers.
type StepResult struct {
	Name       string
	Status     string // "ok" | "error" | "canceled" | "skipped"
	DurationMS int64
	Detail     string // error kind, when Status is "error"
}
