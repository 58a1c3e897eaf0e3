package keyauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/license-checkout/internal/apperr"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestIssueSendsSellerParameters(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/seller/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "seller", q.Get("sellerkey"))
		assert.Equal(t, "add", q.Get("type"))
		assert.Equal(t, "1", q.Get("expiry"))
		assert.Equal(t, "******-******", q.Get("mask"))
		assert.Equal(t, "1", q.Get("level"))
		assert.Equal(t, "1", q.Get("amount"))
		assert.Equal(t, "text", q.Get("format"))
		assert.Equal(t, "user=u1 hwid=h1", q.Get("note"))

		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ABCDEF-123456\n"))
	})

	c := New(Config{BaseURL: srv.URL, SellerKey: "seller", Mask: "******-******"})
	key, err := c.Issue(context.Background(), Binding{UserID: "u1", HWID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF-123456", key)
}

func TestIssueOmitsEmptyNote(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["note"]
		assert.False(t, ok)
		_, _ = w.Write([]byte("KEY-1"))
	})

	c := New(Config{BaseURL: srv.URL, SellerKey: "seller"})
	key, err := c.Issue(context.Background(), Binding{})
	require.NoError(t, err)
	assert.Equal(t, "KEY-1", key)
}

func TestIssueResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		status      int
		body        string
		wantKey     string
		wantErr     error
	}{
		{name: "json_key", contentType: "application/json", status: 200, body: `{"success":true,"message":"ok","key":"JSON-KEY"}`, wantKey: "JSON-KEY"},
		{name: "json_keys", contentType: "application/json; charset=utf-8", status: 200, body: `{"success":true,"keys":["FIRST","SECOND"]}`, wantKey: "FIRST"},
		{name: "json_rejected", contentType: "application/json", status: 200, body: `{"success":false,"message":"Seller key is invalid"}`, wantErr: apperr.ErrLicenseIssuanceFailed},
		{name: "json_body_on_text", contentType: "text/html", status: 200, body: `{"success":false,"message":"nope"}`, wantErr: apperr.ErrLicenseIssuanceFailed},
		{name: "json_missing_field", contentType: "application/json", status: 200, body: `{"success":true}`, wantErr: apperr.ErrLicenseIssuanceFailed},
		{name: "empty", contentType: "text/plain", status: 200, body: "  \n", wantErr: apperr.ErrLicenseIssuanceFailed},
		{name: "server_error", contentType: "text/plain", status: 502, body: "bad gateway", wantErr: apperr.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c := New(Config{BaseURL: srv.URL, SellerKey: "seller", Format: "json"})
			key, err := c.Issue(context.Background(), Binding{})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestIssueTransportErrorHidesSellerKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, SellerKey: "top-secret", Timeout: time.Second})
	_, err := c.Issue(context.Background(), Binding{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.False(t, strings.Contains(err.Error(), "top-secret"))
}

func TestIssueSingleCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := New(Config{BaseURL: srv.URL, SellerKey: "seller"})
	_, err := c.Issue(context.Background(), Binding{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "no retries")
}
