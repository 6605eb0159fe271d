// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which stamps a conservative header set
// suitable for a JSON API behind a reverse proxy. No CSP: nothing here serves
// HTML. HSTS is opt-in and only emitted when the request actually arrived
// over HTTPS, so a misconfigured local deployment cannot pin browsers.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures the emitted headers.
//
// EnableHSTS must only be set when traffic is HTTPS end-to-end, proxy hop
// included. HSTSMaxAge defaults to 180 days when unset. NoStore adds
// Cache-Control: no-store (plus the legacy Pragma/Expires pair) — note the
// bookings listing relies on ETag revalidation, so NoStore stays off in the
// default router wiring. EnablePolicy adds browser feature policies; they are
// inert for non-browser clients.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware adding the security header set:
//
//   - always: X-Content-Type-Options: nosniff, X-Frame-Options: DENY,
//     Referrer-Policy: no-referrer
//   - with EnablePolicy: Permissions-Policy and
//     X-Permitted-Cross-Domain-Policies: none
//   - with NoStore: Cache-Control: no-store, Pragma: no-cache, Expires: 0
//   - with EnableHSTS on an HTTPS request: Strict-Transport-Security
//
// When X-Request-ID is already on the response it is appended to
// Access-Control-Expose-Headers so browser clients can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security",
				"max-age="+strconv.Itoa(maxAge)+"; includeSubDomains; preload")
		}

		if rid := h.Get("X-Request-ID"); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			cur := h.Get(hdr)
			if cur == "" {
				h.Set(hdr, "X-Request-ID")
			} else if !strings.Contains(cur, "X-Request-ID") {
				h.Set(hdr, cur+", X-Request-ID")
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the request used HTTPS directly (r.TLS) or via a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
