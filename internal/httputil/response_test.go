package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jalaprana/site/internal/testutil"
)

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Country string `json:"country"`
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"country":"FR"}`))
	testutil.True(t, DecodeJSON(w, r, &v))
	testutil.Equal(t, "FR", v.Country)
}

func TestDecodeJSONInvalid(t *testing.T) {
	var v map[string]any
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"country":`))
	testutil.False(t, DecodeJSON(w, r, &v))
	testutil.StatusCode(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.Equal(t, 400, resp.Code)
	testutil.Equal(t, "invalid JSON body", resp.Message)
}

func TestDecodeJSONTooLarge(t *testing.T) {
	var v map[string]any
	body := `{"message":"` + strings.Repeat("a", MaxBodySize) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	testutil.False(t, DecodeJSON(w, r, &v))
	testutil.StatusCode(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp ErrorResponse
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.Equal(t, "request body too large", resp.Message)
}

func TestWriteFieldError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFieldError(w, http.StatusBadRequest, "validation failed", "phone", "incomplete", "Phone number incomplete (1 more digit needed)")
	testutil.StatusCode(t, http.StatusBadRequest, w.Code)
	testutil.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Code    int                   `json:"code"`
		Message string                `json:"message"`
		Data    map[string]FieldError `json:"data"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.Equal(t, "validation failed", resp.Message)
	testutil.Equal(t, "incomplete", resp.Data["phone"].Code)
	testutil.Equal(t, "Phone number incomplete (1 more digit needed)", resp.Data["phone"].Message)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "203.0.113.7:5555", want: "203.0.113.7"},
		{name: "remote addr without port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
		{name: "xff from trusted proxy", remoteAddr: "127.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "198.51.100.2"}, want: "198.51.100.2"},
		{name: "xff skips proxy hops", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.5"}, want: "198.51.100.2"},
		{name: "xff client supplied hop ignored", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 198.51.100.2"}, want: "198.51.100.2"},
		{name: "xff all proxies", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "10.0.0.9, 127.0.0.1"}, want: "10.0.0.9"},
		{name: "xff empty entries", remoteAddr: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": " , "}, want: "10.0.0.1"},
		{name: "x-real-ip from trusted proxy", remoteAddr: "192.168.1.1:5555", headers: map[string]string{"X-Real-IP": "198.51.100.9"}, want: "198.51.100.9"},
		{name: "ipv6 loopback proxy", remoteAddr: "[::1]:5555", headers: map[string]string{"X-Forwarded-For": "2001:db8::7"}, want: "2001:db8::7"},
		{name: "private proxy without headers", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "xff ignored from public ip", remoteAddr: "203.0.113.7:5555", headers: map[string]string{"X-Forwarded-For": "198.51.100.2"}, want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			testutil.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"Bearer ", "", false},
		{"Basic abc123", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := ExtractBearerToken(r)
			testutil.Equal(t, tt.ok, ok)
			testutil.Equal(t, tt.want, got)
		})
	}
}
