package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iliamunaev/license-checkout/internal/apperr"
	"github.com/iliamunaev/license-checkout/internal/model"
	"github.com/iliamunaev/license-checkout/internal/order"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- stubs for unit tests ---

type stubOrders struct {
	mu       sync.Mutex
	created  []model.CreateOrderRequest
	captured []model.CaptureOrderRequest

	orderID   string
	createErr error
	receipt   order.Receipt
	captErr   error
	inflight  int64
}

func (s *stubOrders) CreateOrder(_ context.Context, req model.CreateOrderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return s.orderID, s.createErr
}

func (s *stubOrders) CaptureOrder(_ context.Context, req model.CaptureOrderRequest) (order.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, req)
	return s.receipt, s.captErr
}

func (s *stubOrders) InFlight() int64 { return s.inflight }

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()

	var out model.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

// --- unit tests (stub-based) ---

func TestNew_NilServicePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New(nil, time.Second, nil) })
}

func TestHandleCreateOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "empty_object", body: `{}`, wantMsg: "Price and currency are required."},
		{name: "missing_currency", body: `{"price":"10.00"}`, wantMsg: "Price and currency are required."},
		{name: "invalid_json", body: `{"price":`, wantMsg: "Request body must be valid JSON."},
		{name: "unknown_field", body: `{"price":"1","currency":"USD","coupon":"x"}`},
		{name: "wrong_type", body: `{"price":true,"currency":"USD"}`},
		{name: "bad_price_text", body: `{"price":"ten","currency":"USD"}`},
		{name: "exponent_price", body: `{"price":"1e9000000","currency":"USD"}`},
		{name: "negative_exponent_price", body: `{"price":"1e-900000","currency":"USD"}`},
		{name: "too_many_integer_digits", body: `{"price":"1000000000000000","currency":"USD"}`},
		{name: "signed_price", body: `{"price":"+10","currency":"USD"}`},
		{name: "trailing_data", body: `{"price":"1","currency":"USD"} {}`},
		{name: "too_large", body: `{"price":"1","currency":"USD","userID":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantMsg: "Request body is too large."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubOrders{orderID: "ORDER-1"}
			h := New(stub, time.Second, nil)

			rr := post(t, h.HandleCreateOrder, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			out := decodeError(t, rr)
			assert.Equal(t, "invalid_request", out.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, out.Error)
			}
			assert.Empty(t, stub.created, "service must not be called")
		})
	}
}

func TestHandleCreateOrderSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "string_price", body: `{"price":"10.00","currency":"USD","userID":"u-1","hwid":"hw"}`},
		{name: "number_price", body: `{"price":10,"currency":"usd"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubOrders{orderID: "5O190127TN364715T"}
			h := New(stub, time.Second, nil)

			rr := post(t, h.HandleCreateOrder, tt.body)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"orderID":"5O190127TN364715T"}`, rr.Body.String())

			require.Len(t, stub.created, 1)
			assert.Equal(t, "10", stub.created[0].Price.String())
		})
	}
}

func TestHandleCreateOrderServiceErrors(t *testing.T) {
	t.Parallel()

	stub := &stubOrders{createErr: fmt.Errorf("%w: USD allows 2 decimal places", apperr.ErrInvalidRequest)}
	h := New(stub, time.Second, nil)

	rr := post(t, h.HandleCreateOrder, `{"price":"1.001","currency":"USD"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, model.ErrorResponse{Error: "Invalid request.", Kind: "invalid_request"}, decodeError(t, rr))
}

func TestHandleCaptureOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing_order_id", body: `{"userID":"u"}`, wantMsg: "orderID is required."},
		{name: "empty_order_id", body: `{"orderID":""}`},
		{name: "unknown_field", body: `{"orderID":"X","captureData":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubOrders{}
			h := New(stub, time.Second, nil)

			rr := post(t, h.HandleCaptureOrder, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			out := decodeError(t, rr)
			assert.Equal(t, "invalid_request", out.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, out.Error)
			}
			assert.Empty(t, stub.captured)
		})
	}
}

func TestHandleCaptureOrderSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		receipt order.Receipt
		want    string
	}{
		{
			name:    "emailed",
			receipt: order.Receipt{LicenseKey: "KEY-1", PayerEmail: "b@example.com", Emailed: true},
			want:    `{"licenseKey":"KEY-1","message":"License key sent to b@example.com"}`,
		},
		{
			name:    "not_emailed",
			receipt: order.Receipt{LicenseKey: "KEY-2", PayerEmail: "b@example.com"},
			want:    `{"licenseKey":"KEY-2"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubOrders{receipt: tt.receipt}
			h := New(stub, time.Second, nil)

			rr := post(t, h.HandleCaptureOrder, `{"orderID":"ORDER-1","hwid":"hw-1"}`)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, tt.want, rr.Body.String())
			require.Len(t, stub.captured, 1)
			assert.Equal(t, model.CaptureOrderRequest{OrderID: "ORDER-1", HWID: "hw-1"}, stub.captured[0])
		})
	}
}

func TestHandleCaptureOrderErrorMapping(t *testing.T) {
	t.Parallel()

	secret := "debug_id=abc client_secret=hunter2"

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{
			name:       "already_captured",
			err:        fmt.Errorf("order X: %w", apperr.ErrAlreadyCaptured),
			wantStatus: http.StatusBadRequest,
			wantKind:   "already_captured",
			wantMsg:    "Order has already been captured.",
		},
		{
			name:       "not_found",
			err:        fmt.Errorf("%s: %w", secret, apperr.ErrUpstreamNotFound),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "upstream_not_found",
			wantMsg:    "Upstream service failure.",
		},
		{
			name:       "capture_failed",
			err:        fmt.Errorf("%s: %w", secret, apperr.ErrCaptureFailed),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "capture_failed",
			wantMsg:    "Upstream service failure.",
		},
		{
			name:       "issuance_failed",
			err:        fmt.Errorf("%s: %w", secret, apperr.ErrLicenseIssuanceFailed),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "license_issuance_failed",
			wantMsg:    "Upstream service failure.",
		},
		{
			name:       "timeout",
			err:        fmt.Errorf("%s: %w", secret, context.DeadlineExceeded),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "upstream_error",
			wantMsg:    "Upstream service failure.",
		},
		{
			name:       "unclassified",
			err:        errors.New(secret),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal",
			wantMsg:    "Upstream service failure.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := New(&stubOrders{captErr: tt.err}, time.Second, nil)

			rr := post(t, h.HandleCaptureOrder, `{"orderID":"ORDER-1"}`)
			require.Equal(t, tt.wantStatus, rr.Code)
			assert.NotContains(t, rr.Body.String(), "hunter2")

			out := decodeError(t, rr)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantMsg, out.Error)
		})
	}
}

func TestHandleCompleteOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		contains    string
		notContains string
	}{
		{name: "missing", query: "", wantStatus: http.StatusBadRequest, contains: "License key not found."},
		{name: "blank", query: "?licenseKey=%20", wantStatus: http.StatusBadRequest, contains: "License key not found."},
		{name: "plain", query: "?licenseKey=ABCD-1234", wantStatus: http.StatusOK, contains: "ABCD-1234"},
		{
			name:        "markup_escaped",
			query:       "?licenseKey=%3Cscript%3Ealert(1)%3C%2Fscript%3E",
			wantStatus:  http.StatusOK,
			contains:    "&lt;script&gt;alert(1)&lt;/script&gt;",
			notContains: "<script>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := New(&stubOrders{}, time.Second, nil)
			rr := httptest.NewRecorder()
			h.HandleCompleteOrder(rr, httptest.NewRequest(http.MethodGet, "/complete-order"+tt.query, nil))

			require.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.contains)
			if tt.notContains != "" {
				assert.NotContains(t, rr.Body.String(), tt.notContains)
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHandleIndexAndHealth(t *testing.T) {
	t.Parallel()

	h := New(&stubOrders{inflight: 3}, time.Second, nil)

	rr := httptest.NewRecorder()
	h.HandleIndex(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Welcome to the PayPal API! Your backend is up and running.", rr.Body.String())

	rr = httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","inflight":3}`, rr.Body.String())
}

type blockingOrders struct {
	stubOrders
}

func (b *blockingOrders) CaptureOrder(ctx context.Context, _ model.CaptureOrderRequest) (order.Receipt, error) {
	<-ctx.Done()
	return order.Receipt{}, ctx.Err()
}

func TestHandleCaptureOrderRequestTimeout(t *testing.T) {
	t.Parallel()

	h := New(&blockingOrders{}, 10*time.Millisecond, nil)

	rr := post(t, h.HandleCaptureOrder, `{"orderID":"ORDER-1"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "upstream_error", decodeError(t, rr).Kind)
}

func TestDecodeBodyKeepsBodyIntact(t *testing.T) {
	t.Parallel()

	var req model.CaptureOrderRequest
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"orderID":"A","userID":"u","hwid":"h"}`)))
	err := decodeBody(httptest.NewRecorder(), r, captureOrderBody, "orderID is required.", &req)
	require.NoError(t, err)
	assert.Equal(t, model.CaptureOrderRequest{OrderID: "A", UserID: "u", HWID: "h"}, req)
}
