package server

import (
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jalaprana/site/internal/httputil"
)

// requestLogger logs one line per request once the handler has returned.
// Server errors are logged at warn level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("client_ip", httputil.ClientIP(r)),
			)
		})
	}
}

// corsPolicy answers browser cross-origin checks for the public form
// endpoints. A lone "*" allows every origin; otherwise a matching Origin is
// echoed back, since the header cannot carry a list.
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool, len(origins))}
	if len(origins) == 1 && origins[0] == "*" {
		p.any = true
	}
	for _, o := range origins {
		p.origins[o] = true
	}
	return p
}

func (p corsPolicy) allowOrigin(h http.Header, origin string) {
	switch {
	case p.any:
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "" && p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			policy.allowOrigin(h, r.Header.Get("Origin"))
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			// The form script reads these to show the test banner and the
			// rate-limit notice.
			h.Set("Access-Control-Expose-Headers", "X-Test-Mode, X-RateLimit-Remaining, Retry-After")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ipAllowList admits only the listed client IPs; an empty list admits
// everyone. With allowLocal, requests sent straight from a loopback address
// skip the check so the site can be previewed on the machine it runs on.
func ipAllowList(allowed []string, allowLocal bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	permitted := make(map[string]bool, len(allowed))
	for _, ip := range allowed {
		permitted[canonicalIP(ip)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowLocal && fromLoopback(r) {
				next.ServeHTTP(w, r)
				return
			}
			ip := canonicalIP(httputil.ClientIP(r))
			if permitted[ip] {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("access denied", "client_ip", ip, "path", r.URL.Path)
			writeAccessDenied(w, ip)
		})
	}
}

func writeAccessDenied(w http.ResponseWriter, ip string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, "<h1>Access Denied</h1><p>Your IP (%s) is not allowed.</p>", html.EscapeString(ip))
}

// fromLoopback reports whether the connection comes from this machine and
// was not relayed by a local reverse proxy. The Host header is client
// controlled and plays no part.
func fromLoopback(r *http.Request) bool {
	if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("X-Real-IP") != "" {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.Unmap().IsLoopback()
}

// canonicalIP normalizes an address so "::ffff:10.0.0.1" and "10.0.0.1"
// compare equal. Unparseable input is returned trimmed.
func canonicalIP(s string) string {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().String()
}
