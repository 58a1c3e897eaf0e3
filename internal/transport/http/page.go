package httptransport

import (
	"bytes"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/iliamunaev/license-checkout/internal/apperr"
)

var completionPage = template.Must(template.New("complete").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Payment Successful</title>
  <style>
    body { font-family: sans-serif; text-align: center; padding: 50px; }
    .key { font-size: 1.25em; font-weight: bold; color: #2e7d32; word-break: break-all; }
  </style>
</head>
<body>
  <h1>Thank you for your purchase!</h1>
  <p>Your license key:</p>
  <p class="key">{{.}}</p>
  <p>Keep this key somewhere safe.</p>
</body>
</html>
`))

// HandleCompleteOrder renders the confirmation page for the licenseKey
// query parameter. The key is HTML-escaped.
func (h *Handler) HandleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("licenseKey"))
	if key == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(apperr.HTTPStatus(apperr.ErrMissingParameter))
		_, _ = io.WriteString(w, "License key not found.")
		return
	}

	var buf bytes.Buffer
	if err := completionPage.Execute(&buf, key); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
