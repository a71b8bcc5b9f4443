package server

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jalaprana/site/internal/emailtemplates"
	"github.com/jalaprana/site/internal/httputil"
	"github.com/jalaprana/site/internal/mailer"
)

// emailTemplateAdmin is the part of emailtemplates.Service the admin
// routes use.
type emailTemplateAdmin interface {
	List(ctx context.Context) ([]*emailtemplates.Template, error)
	Upsert(ctx context.Context, key, subjectTpl, htmlTpl string) (*emailtemplates.Template, error)
	Delete(ctx context.Context, key string) error
	SetEnabled(ctx context.Context, key string, enabled bool) error
	GetEffective(ctx context.Context, key string) (*emailtemplates.EffectiveTemplate, error)
	Preview(ctx context.Context, key, subjectTpl, htmlTpl string, vars map[string]string) (*emailtemplates.RenderedEmail, error)
	Send(ctx context.Context, key string, msg *mailer.Message, vars map[string]string) error
	SystemKeys() []emailtemplates.EffectiveTemplate
}

type emailTemplateListItem struct {
	TemplateKey     string `json:"templateKey"`
	Source          string `json:"source"`
	SubjectTemplate string `json:"subjectTemplate"`
	Enabled         bool   `json:"enabled"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

type emailTemplateListResponse struct {
	Items []emailTemplateListItem `json:"items"`
	Count int                     `json:"count"`
}

type previewEmailTemplateResponse struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// templateSource is the body of PUT and preview requests.
type templateSource struct {
	SubjectTemplate string            `json:"subjectTemplate"`
	HTMLTemplate    string            `json:"htmlTemplate"`
	Variables       map[string]string `json:"variables"`
}

type sendEmailRequest struct {
	TemplateKey string            `json:"templateKey" validate:"required"`
	To          string            `json:"to" validate:"required,email"`
	Variables   map[string]string `json:"variables"`
}

type templateRoutes struct {
	svc      emailTemplateAdmin
	validate *validator.Validate
}

// mountEmailTemplateAdmin registers the template routes on r.
func mountEmailTemplateAdmin(r chi.Router, svc emailTemplateAdmin) {
	h := &templateRoutes{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	r.Get("/", h.list)
	r.Post("/send", h.send)
	r.Get("/{key}", h.get)
	r.Put("/{key}", h.upsert)
	r.Delete("/{key}", h.delete)
	r.Patch("/{key}", h.patch)
	r.Post("/{key}/preview", h.preview)
}

// writeTemplateError maps service errors onto the error envelope. action
// names the operation in the 500 message.
func writeTemplateError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, emailtemplates.ErrNoStore):
		httputil.WriteError(w, http.StatusConflict, "email.templates_dir is not configured")
	case errors.Is(err, emailtemplates.ErrNotFound), errors.Is(err, emailtemplates.ErrNoTemplate):
		httputil.WriteError(w, http.StatusNotFound, "template not found")
	case errors.Is(err, emailtemplates.ErrInvalidKey),
		errors.Is(err, emailtemplates.ErrParseFailed),
		errors.Is(err, emailtemplates.ErrRenderFailed),
		errors.Is(err, emailtemplates.ErrTooLarge):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// keyParam returns the {key} URL parameter, or writes a 400 when it is not a
// valid template key.
func keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if err := emailtemplates.ValidateKey(key); err != nil {
		writeTemplateError(w, err, "")
		return "", false
	}
	return key, true
}

// decodeSource reads a templateSource whose htmlTemplate must be set. An
// empty subject means the built-in one.
func decodeSource(w http.ResponseWriter, r *http.Request) (templateSource, bool) {
	var src templateSource
	if !httputil.DecodeJSON(w, r, &src) {
		return src, false
	}
	if src.HTMLTemplate == "" {
		httputil.WriteFieldError(w, http.StatusBadRequest, "htmlTemplate is required",
			"htmlTemplate", "required", "is required")
		return src, false
	}
	if src.Variables == nil {
		src.Variables = map[string]string{}
	}
	return src, true
}

// list shows every built-in key, with its override when there is one,
// followed by overrides for keys that have no built-in.
func (h *templateRoutes) list(w http.ResponseWriter, r *http.Request) {
	custom, err := h.svc.List(r.Context())
	if err != nil && !errors.Is(err, emailtemplates.ErrNoStore) {
		writeTemplateError(w, err, "list email templates")
		return
	}
	byKey := make(map[string]*emailtemplates.Template, len(custom))
	for _, t := range custom {
		byKey[t.TemplateKey] = t
	}

	items := []emailTemplateListItem{}
	builtin := map[string]bool{}
	for _, sk := range h.svc.SystemKeys() {
		builtin[sk.TemplateKey] = true
		if t, ok := byKey[sk.TemplateKey]; ok {
			items = append(items, customItem(t, sk.SubjectTemplate))
			continue
		}
		items = append(items, emailTemplateListItem{
			TemplateKey:     sk.TemplateKey,
			Source:          emailtemplates.SourceBuiltin,
			SubjectTemplate: sk.SubjectTemplate,
			Enabled:         true,
		})
	}
	for _, t := range custom {
		if !builtin[t.TemplateKey] {
			items = append(items, customItem(t, ""))
		}
	}
	httputil.WriteJSON(w, http.StatusOK, emailTemplateListResponse{Items: items, Count: len(items)})
}

func customItem(t *emailtemplates.Template, fallbackSubject string) emailTemplateListItem {
	item := emailTemplateListItem{
		TemplateKey:     t.TemplateKey,
		Source:          emailtemplates.SourceCustom,
		SubjectTemplate: cmp.Or(t.SubjectTemplate, fallbackSubject),
		Enabled:         t.Enabled,
	}
	if !t.UpdatedAt.IsZero() {
		item.UpdatedAt = t.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *templateRoutes) get(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	eff, err := h.svc.GetEffective(r.Context(), key)
	if err != nil {
		writeTemplateError(w, err, "get template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eff)
}

func (h *templateRoutes) upsert(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	src, ok := decodeSource(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Upsert(r.Context(), key, src.SubjectTemplate, src.HTMLTemplate)
	if err != nil {
		writeTemplateError(w, err, "save template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *templateRoutes) delete(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), key); err != nil {
		writeTemplateError(w, err, "delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *templateRoutes) patch(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		httputil.WriteFieldError(w, http.StatusBadRequest, "enabled field is required",
			"enabled", "required", "is required")
		return
	}
	if err := h.svc.SetEnabled(r.Context(), key, *req.Enabled); err != nil {
		writeTemplateError(w, err, "update template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"templateKey": key, "enabled": *req.Enabled})
}

func (h *templateRoutes) preview(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	src, ok := decodeSource(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Preview(r.Context(), key, src.SubjectTemplate, src.HTMLTemplate, src.Variables)
	if err != nil {
		writeTemplateError(w, err, "preview template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, previewEmailTemplateResponse{Subject: out.Subject, HTML: out.HTML, Text: out.Text})
}

// sendFieldNames maps struct fields to their JSON names for error data.
var sendFieldNames = map[string]string{"TemplateKey": "templateKey", "To": "to"}

func (h *templateRoutes) send(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	var verrs validator.ValidationErrors
	if err := h.validate.Struct(req); errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "must be a valid email address"
		if fe.Tag() == "required" {
			msg = "is required"
		}
		httputil.WriteFieldError(w, http.StatusBadRequest, "invalid send request", sendFieldNames[fe.Field()], fe.Tag(), msg)
		return
	} else if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid send request")
		return
	}
	if err := emailtemplates.ValidateKey(req.TemplateKey); err != nil {
		writeTemplateError(w, err, "")
		return
	}
	if req.Variables == nil {
		req.Variables = map[string]string{}
	}
	if err := h.svc.Send(r.Context(), req.TemplateKey, &mailer.Message{To: req.To}, req.Variables); err != nil {
		writeTemplateError(w, err, "send email")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
