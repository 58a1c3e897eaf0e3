package paypal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/iliamunaev/license-checkout/internal/apperr"
)

const maxLoggedBody = 512

// APIError is a non-2xx answer from the checkout API. Its Error text carries
// the provider's diagnostic payload for logs; callers never see it.
type APIError struct {
	Op         string
	StatusCode int
	Name       string
	Message    string
	DebugID    string
	Issues     []string
	Body       string
}

func newAPIError(op string, status int, raw []byte) *APIError {
	e := &APIError{Op: op, StatusCode: status}

	var payload struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		DebugID string `json:"debug_id"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		e.Name = payload.Name
		e.Message = payload.Message
		e.DebugID = payload.DebugID
		for _, d := range payload.Details {
			if d.Issue != "" {
				e.Issues = append(e.Issues, d.Issue)
			}
		}
	}
	if len(raw) > maxLoggedBody {
		raw = raw[:maxLoggedBody]
	}
	e.Body = string(raw)
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: %s: status %d name=%q message=%q debug_id=%q issues=%v body=%q",
		e.Op, e.StatusCode, e.Name, e.Message, e.DebugID, e.Issues, e.Body)
}

// Unwrap exposes the classification sentinels to errors.Is.
func (e *APIError) Unwrap() []error {
	errs := []error{apperr.ErrUpstream}
	if e.StatusCode == http.StatusNotFound || e.Name == "RESOURCE_NOT_FOUND" {
		errs = append(errs, apperr.ErrUpstreamNotFound)
	}
	if slices.Contains(e.Issues, "ORDER_ALREADY_CAPTURED") {
		errs = append(errs, apperr.ErrAlreadyCaptured)
	}
	return errs
}
