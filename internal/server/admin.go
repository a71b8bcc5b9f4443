package server

import (
	"crypto/subtle"
	"net/http"
	"runtime"
	"time"

	"github.com/jalaprana/site/internal/httputil"
)

// requireAdminToken admits only requests bearing admin.token.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	want := []byte(s.cfg.Admin.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := httputil.ExtractBearerToken(r)
		if ok && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		httputil.WriteError(w, http.StatusUnauthorized, "admin authentication required")
	})
}

// SetLogBuffer exposes lb through /api/admin/logs.
func (s *Server) SetLogBuffer(lb *LogBuffer) {
	s.logBuffer = lb
}

type logsResponse struct {
	Entries []LogEntry `json:"entries"`
	Message string     `json:"message,omitempty"`
}

func (s *Server) handleAdminLogs(w http.ResponseWriter, _ *http.Request) {
	resp := logsResponse{Entries: []LogEntry{}}
	if s.logBuffer == nil {
		resp.Message = "log buffering not enabled"
	} else {
		resp.Entries = s.logBuffer.Entries()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	UptimeSeconds     int    `json:"uptime_seconds"`
	GoVersion         string `json:"go_version"`
	Goroutines        int    `json:"goroutines"`
	MemoryAlloc       uint64 `json:"memory_alloc"`
	ContactEnabled    bool   `json:"contact_enabled"`
	ContactSubmitted  int64  `json:"contact_submitted"`
	ContactRejected   int64  `json:"contact_rejected"`
	ContactTrackedIPs *int   `json:"contact_tracked_ips,omitempty"`
	TestMode          bool   `json:"test_mode"`
	EmailBackend      string `json:"email_backend"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := statsResponse{
		UptimeSeconds:    int(time.Since(s.startTime).Seconds()),
		GoVersion:        runtime.Version(),
		Goroutines:       runtime.NumGoroutine(),
		MemoryAlloc:      mem.Alloc,
		ContactEnabled:   s.contact != nil,
		ContactSubmitted: s.contactSubmitted.Load(),
		ContactRejected:  s.contactRejected.Load(),
		TestMode:         s.cfg.Contact.TestMode,
		EmailBackend:     s.cfg.Email.Backend,
	}
	if s.contactRL != nil {
		n := s.contactRL.size()
		resp.ContactTrackedIPs = &n
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
