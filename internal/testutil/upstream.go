// Package testutil provides an in-process stand-in for the payment and
// license APIs, for tests that exercise the real clients end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// SellerKey is the seller credential the fake license API accepts.
const SellerKey = "seller-secret"

// PayerEmail is reported as the payer of every captured order.
const PayerEmail = "buyer@example.com"

type fakeOrder struct {
	status   string
	customID string
}

// Upstream fakes both remote APIs on one httptest server.
type Upstream struct {
	Server *httptest.Server

	Tokens   atomic.Int32
	Captures atomic.Int32
	Issues   atomic.Int32

	// FailCapture makes the capture endpoint answer 500.
	FailCapture atomic.Bool
	// FailIssue makes the license endpoint answer success=false.
	FailIssue atomic.Bool

	mu     sync.Mutex
	seq    int
	orders map[string]*fakeOrder
	notes  []string
}

// NewUpstream starts a fake upstream that is closed when t finishes.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()

	u := &Upstream{orders: make(map[string]*fakeOrder)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", u.token)
	mux.HandleFunc("POST /v2/checkout/orders", u.create)
	mux.HandleFunc("GET /v2/checkout/orders/{id}", u.get)
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", u.capture)
	mux.HandleFunc("GET /api/seller/", u.issue)

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)
	return u
}

// URL is the base URL for both clients.
func (u *Upstream) URL() string { return u.Server.URL }

// Client returns an HTTP client whose idle connections die with the server.
func (u *Upstream) Client() *http.Client { return u.Server.Client() }

// Status returns the stored status of an order, or "".
func (u *Upstream) Status(id string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if o, ok := u.orders[id]; ok {
		return o.status
	}
	return ""
}

// SetStatus overrides the stored status of an order.
func (u *Upstream) SetStatus(id, status string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if o, ok := u.orders[id]; ok {
		o.status = status
	}
}

// Notes returns the binding notes sent with each issued license.
func (u *Upstream) Notes() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.notes...)
}

func (u *Upstream) token(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	u.Tokens.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "A21AA-test-token",
		"token_type":   "Bearer",
		"expires_in":   32400,
	})
}

func (u *Upstream) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.PurchaseUnits) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "INVALID_REQUEST", "message": "bad body"})
		return
	}

	u.mu.Lock()
	u.seq++
	id := fmt.Sprintf("ORDER-%04d", u.seq)
	u.orders[id] = &fakeOrder{status: "CREATED", customID: body.PurchaseUnits[0].CustomID}
	u.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "CREATED"})
}

func (u *Upstream) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	u.mu.Lock()
	o, ok := u.orders[id]
	var status, customID string
	if ok {
		status, customID = o.status, o.customID
	}
	u.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"name":     "RESOURCE_NOT_FOUND",
			"message":  "The specified resource does not exist.",
			"debug_id": "dbg-404",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"status":         status,
		"purchase_units": []map[string]string{{"custom_id": customID}},
	})
}

func (u *Upstream) capture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u.Captures.Add(1)

	if u.FailCapture.Load() {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"name":     "INTERNAL_SERVER_ERROR",
			"message":  "An internal server error occurred.",
			"debug_id": "dbg-500",
		})
		return
	}

	u.mu.Lock()
	o, ok := u.orders[id]
	already := ok && o.status == "COMPLETED"
	if ok && !already {
		o.status = "COMPLETED"
	}
	u.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "RESOURCE_NOT_FOUND"})
	case already:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"name":    "UNPROCESSABLE_ENTITY",
			"details": []map[string]string{{"issue": "ORDER_ALREADY_CAPTURED"}},
		})
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":     id,
			"status": "COMPLETED",
			"payer":  map[string]string{"email_address": PayerEmail, "payer_id": "PAYER1"},
		})
	}
}

func (u *Upstream) issue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("sellerkey") != SellerKey || q.Get("type") != "add" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Invalid seller key"})
		return
	}
	if u.FailIssue.Load() {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Key limit reached"})
		return
	}

	n := u.Issues.Add(1)
	u.mu.Lock()
	u.notes = append(u.notes, q.Get("note"))
	u.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "LIC-%04d-TEST", n)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
