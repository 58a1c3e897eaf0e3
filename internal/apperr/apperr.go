// Package apperr defines the error taxonomy shared by the orchestrator,
// the upstream clients and the HTTP transport.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrMissingParameter      = errors.New("missing parameter")
	ErrAlreadyCaptured       = errors.New("order already captured")
	ErrUpstreamNotFound      = errors.New("upstream resource not found")
	ErrUpstream              = errors.New("upstream error")
	ErrCaptureFailed         = errors.New("capture failed")
	ErrLicenseIssuanceFailed = errors.New("license issuance failed")
	ErrRateLimited           = errors.New("rate limited")
)

// Kind classifies err into a stable, caller-visible string.
// More specific sentinels win over ErrUpstream, which upstream clients
// attach to every remote failure.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"

	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"

	case errors.Is(err, ErrAlreadyCaptured):
		return "already_captured"

	case errors.Is(err, ErrRateLimited):
		return "rate_limited"

	case errors.Is(err, ErrUpstreamNotFound):
		return "upstream_not_found"

	case errors.Is(err, ErrCaptureFailed):
		return "capture_failed"

	case errors.Is(err, ErrLicenseIssuanceFailed):
		return "license_issuance_failed"

	case errors.Is(err, ErrUpstream),
		errors.Is(err, context.DeadlineExceeded):
		return "upstream_error"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code written to the caller.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingParameter),
		errors.Is(err, ErrAlreadyCaptured):
		return http.StatusBadRequest

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

// Message returns the generic, detail-free text shown to callers.
func Message(err error) string {
	switch Kind(err) {
	case "":
		return ""
	case "invalid_request":
		return "Invalid request."
	case "missing_parameter":
		return "Required parameter is missing."
	case "already_captured":
		return "Order has already been captured."
	case "rate_limited":
		return "Too many requests, please try again later."
	case "canceled":
		return "Request canceled."
	default:
		return "Upstream service failure."
	}
}
