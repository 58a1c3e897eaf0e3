package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP replaces RemoteAddr with the client address reported through
// X-Forwarded-For by the trusted proxies in front of the server. hops is
// how many proxies are trusted; the entry the outermost trusted one
// appended wins. With hops <= 0 the header is ignored and the socket peer
// stays authoritative. True-Client-IP and X-Real-IP are never consulted.
func RealIP(hops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := forwardedFor(r, hops); ip != "" {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedFor picks the address hops entries from the right end of the
// X-Forwarded-For chain, or the leftmost one when the chain is shorter.
// It returns "" when nothing usable is present.
func forwardedFor(r *http.Request, hops int) string {
	if hops <= 0 {
		return ""
	}

	var chain []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				chain = append(chain, part)
			}
		}
	}
	if len(chain) == 0 {
		return ""
	}

	ip := net.ParseIP(chain[max(len(chain)-hops, 0)])
	if ip == nil {
		return ""
	}
	return ip.String()
}
