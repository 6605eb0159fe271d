// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Requests through
// this API routinely carry patient emails (identity headers, booking
// payloads, query filters), so the logger scrubs rather than prints:
//
//   - request and response bodies are never logged
//   - emails, phone numbers, and UUID-like ids are pattern-redacted from
//     query strings and header values
//   - sensitive headers (Authorization, Cookie, Set-Cookie, plus any named in
//     RedactOptions) are masked outright
//
// It also attaches the request-scoped zerolog.Logger (context key "logger")
// that LoggerFrom() and the handlers' error path consume.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra HTTP headers whose values are replaced with
// "[REDACTED]" wholesale. Matching is case-insensitive and merged with the
// built-in sensitive set.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that writes one structured access
// log line per request with PII scrubbed, at a level chosen by outcome
// (info, warn for 4xx, error for 5xx). The chat session id (X-Session-ID) is
// logged as-is: it is a correlation key, not an identifier of the patient.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE := regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone shapes ("+60 12-345 6789", "(03) 5555 1234"). Kept
	// loose on purpose; clinic traffic carries phone numbers in odd places.
	phoneRE := regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	// UUIDs first: the phone pattern would otherwise eat their digit runs.
	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := uuidRE.ReplaceAllString(s, "[REDACTED:id]")
		out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
		out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
		return out
	}

	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(val)
		}

		// Response header first (set by RequestID), then the request's own.
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		sessionID := strings.TrimSpace(c.GetHeader(HeaderSessionID))

		// Request-scoped logger for handlers and services.
		l := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("session_id", sessionID).
			Logger()
		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		ev := l.Info()
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}

		ev.
			Str("remote_ip", c.ClientIP()).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", size).
			Dur("latency", latency).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
