package httputil

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// MaxBodySize caps request bodies. Contact messages and phone payloads are
// a few hundred bytes.
const MaxBodySize = 64 << 10

// DecodeJSON decodes the request body into v. On failure it writes the
// error response (413 for an oversized body, 400 otherwise) and returns
// false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
	} else {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
	}
	return false
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token, ok && token != ""
}

// ClientIP returns the address of the client that sent r. X-Forwarded-For
// and X-Real-IP are honored only when the peer itself is a loopback or
// private address, that is a reverse proxy in front of us. Proxies append to
// X-Forwarded-For, so it is read from the right and the first hop that is not
// a proxy address wins; entries left of it are client supplied.
func ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !behindProxy(peer) {
		return peer
	}
	if ip := forwardedFor(r.Header.Values("X-Forwarded-For")); ip != "" {
		return ip
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}

// forwardedFor walks the X-Forwarded-For hops right to left and returns the
// first one that is not a proxy address. When every hop is, the leftmost is
// returned.
func forwardedFor(values []string) string {
	var hops []string
	for _, v := range values {
		for hop := range strings.SplitSeq(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !behindProxy(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return ""
}

func behindProxy(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}
