package server

import (
	"net/http"
	"strings"

	"github.com/jalaprana/site/internal/httputil"
	"github.com/jalaprana/site/internal/phone"
)

type countriesResponse struct {
	Default   phone.Code      `json:"default"`
	Countries []phone.Country `json:"countries"`
}

type formatRequest struct {
	Country string `json:"country"`
	Digits  string `json:"digits"`
}

type validateRequest struct {
	Country string `json:"country"`
	Value   string `json:"value"`
}

type inputRequest struct {
	Country  string `json:"country"`
	Previous string `json:"previous"`
	Input    string `json:"input"`
}

type phoneStateResponse struct {
	Country    phone.Code `json:"country"`
	Value      string     `json:"value"`
	Valid      bool       `json:"valid"`
	Error      string     `json:"error,omitempty"`
	DigitCount int        `json:"digitCount"`
	MaxDigits  int        `json:"maxDigits"`
	Changed    *bool      `json:"changed,omitempty"`
}

type validateResponse struct {
	Country phone.Code `json:"country"`
	Valid   bool       `json:"valid"`
	Error   string     `json:"error,omitempty"`
	E164    string     `json:"e164,omitempty"`
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, countriesResponse{
		Default:   s.registry.Lookup(s.cfg.DefaultCountry()).Code,
		Countries: s.registry.Countries(),
	})
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	c, ok := s.resolveCountry(w, req.Country, "")
	if !ok {
		return
	}

	in := phone.NewInput(s.registry, c.Code, phone.Format(req.Digits, c))
	httputil.WriteJSON(w, http.StatusOK, stateResponse(in, in.Err(), nil))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	c, ok := s.resolveCountry(w, req.Country, req.Value)
	if !ok {
		return
	}

	resp := validateResponse{Country: c.Code, Valid: phone.Validate(req.Value, c)}
	if err := phone.ValidationError(req.Value, c); err != nil {
		resp.Error = err.Error()
	}
	if resp.Valid {
		resp.E164, _ = phone.NormalizeE164(req.Value, c)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleInput runs one edit event through the input controller. The client
// sends the value it last displayed and the text after the edit.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	c, ok := s.resolveCountry(w, req.Country, req.Previous)
	if !ok {
		return
	}

	in := phone.NewInput(s.registry, c.Code, req.Previous)
	value, _ := in.Change(req.Input)
	changed := value != req.Input
	httputil.WriteJSON(w, http.StatusOK, stateResponse(in, in.Hint(), &changed))
}

func stateResponse(in *phone.Input, err error, changed *bool) phoneStateResponse {
	resp := phoneStateResponse{
		Country:    in.Country().Code,
		Value:      in.Value(),
		Valid:      in.Valid(),
		DigitCount: in.DigitCount(),
		MaxDigits:  in.MaxDigits(),
		Changed:    changed,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// resolveCountry picks the country for a request: the given code, or the
// one detected from value's dialing prefix, or the configured default.
// Unsupported codes get a 400.
func (s *Server) resolveCountry(w http.ResponseWriter, raw, value string) (phone.Country, bool) {
	if strings.TrimSpace(raw) == "" {
		v := strings.TrimSpace(value)
		if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "(") {
			return s.registry.Detect(v), true
		}
		return s.registry.Lookup(s.cfg.DefaultCountry()), true
	}

	code, ok := phone.ParseCode(raw)
	if !ok {
		httputil.WriteFieldError(w, http.StatusBadRequest, "unsupported country",
			"country", "unsupported", "supported countries are FR, CH, US and GB")
		return phone.Country{}, false
	}
	c, ok := s.registry.Get(code)
	if !ok {
		httputil.WriteFieldError(w, http.StatusBadRequest, "unsupported country",
			"country", "unsupported", "country is not registered")
		return phone.Country{}, false
	}
	return c, true
}
