// Package httptransport implements the HTTP transport layer
// for the license checkout service.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/iliamunaev/license-checkout/internal/model"
	"github.com/iliamunaev/license-checkout/internal/order"
)

const (
	maxBodyBytes = 16 << 10
	banner       = "Welcome to the PayPal API! Your backend is up and running."
)

type orderService interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (string, error)
	CaptureOrder(ctx context.Context, req model.CaptureOrderRequest) (order.Receipt, error)
	InFlight() int64
}

// Handler serves the checkout endpoints.
type Handler struct {
	orders         orderService
	requestTimeout time.Duration
	log            *slog.Logger
}

// New returns a Handler configured with the given order service
// and request timeout.
//
// It panics if orders is nil. If requestTimeout is non-positive,
// a default timeout is applied.
func New(orders orderService, requestTimeout time.Duration, logger *slog.Logger) *Handler {
	if orders == nil {
		panic("httptransport.New: nil order service")
	}
	if requestTimeout <= 0 {
		requestTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		orders:         orders,
		requestTimeout: requestTimeout,
		log:            logger,
	}
}

// HandleIndex writes the plain-text banner.
func (h *Handler) HandleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, banner)
}

// HandleHealth reports liveness and the number of running workflows.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{Status: "ok", InFlight: h.orders.InFlight()})
}

// HandleCreateOrder registers a payment order and returns its id.
func (h *Handler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := decodeBody(w, r, createOrderBody, "Price and currency are required.", &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	orderID, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.CreateOrderResponse{OrderID: orderID})
}

// HandleCaptureOrder captures payment and returns the issued license key.
func (h *Handler) HandleCaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CaptureOrderRequest
	if err := decodeBody(w, r, captureOrderBody, "orderID is required.", &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	rec, err := h.orders.CaptureOrder(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	resp := model.CaptureOrderResponse{LicenseKey: rec.LicenseKey}
	if rec.Emailed {
		resp.Message = "License key sent to " + rec.PayerEmail
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads at most maxBodyBytes, validates them against schema and
// decodes into dst, rejecting unknown fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, missingMsg string, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalid("Request body is too large.")
		}
		return invalid("Request body could not be read.")
	}
	if err := validate(schema, raw, missingMsg); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid("Request body is invalid.")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return invalid("Request body must contain a single JSON object.")
	}
	return nil
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
