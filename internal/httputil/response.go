// Package httputil holds the JSON envelope and request helpers shared by
// the HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every API error:
//
//	{"code": 400, "message": "...", "data": {"phone": {"code": "incomplete", "message": "..."}}}
//
// data is present only for field-level errors.
type ErrorResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// FieldError is the per-field entry of ErrorResponse.Data.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Code: status, Message: message})
}

// WriteFieldError reports a single rejected field.
func WriteFieldError(w http.ResponseWriter, status int, message string, field, fieldCode, fieldMsg string) {
	WriteFieldErrors(w, status, message, map[string]FieldError{
		field: {Code: fieldCode, Message: fieldMsg},
	})
}

func WriteFieldErrors(w http.ResponseWriter, status int, message string, fields map[string]FieldError) {
	data := make(map[string]any, len(fields))
	for name, fe := range fields {
		data[name] = fe
	}
	WriteJSON(w, status, ErrorResponse{Code: status, Message: message, Data: data})
}
