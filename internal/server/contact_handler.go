package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jalaprana/site/internal/contact"
	"github.com/jalaprana/site/internal/httputil"
)

type contactResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	TestMode bool   `json:"testMode"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var sub contact.Submission
	if !httputil.DecodeJSON(w, r, &sub) {
		return
	}

	receipt, err := s.contact.Submit(r.Context(), sub)
	if err != nil {
		s.contactRejected.Add(1)
		var verr *contact.ValidationError
		switch {
		case errors.Is(err, contact.ErrMissingFields):
			httputil.WriteError(w, http.StatusBadRequest, contact.MsgMissingFields)
		case errors.As(err, &verr):
			fields := make(map[string]httputil.FieldError, len(verr.Fields))
			for _, f := range verr.Fields {
				fields[f.Field] = httputil.FieldError{Code: f.Code, Message: f.Message}
			}
			httputil.WriteFieldErrors(w, http.StatusBadRequest, contact.MsgInvalidFields, fields)
		default:
			s.logger.Error("contact submission failed",
				"error", err, "request_id", middleware.GetReqID(r.Context()))
			httputil.WriteError(w, http.StatusInternalServerError, contact.MsgServerError)
		}
		return
	}

	s.contactSubmitted.Add(1)
	if receipt.TestMode {
		w.Header().Set("X-Test-Mode", "true")
	}
	httputil.WriteJSON(w, http.StatusOK, contactResponse{
		Message:  contact.MsgSent,
		ID:       receipt.ID,
		TestMode: receipt.TestMode,
	})
}
