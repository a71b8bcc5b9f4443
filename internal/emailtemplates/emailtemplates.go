// Package emailtemplates renders the contact emails. Each key has a
// built-in subject and body; a TemplateStore may hold overrides that take
// precedence while enabled.
package emailtemplates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/jalaprana/site/internal/mailer"
)

var (
	ErrNotFound     = errors.New("template not found")
	ErrNoTemplate   = errors.New("no template exists for key")
	ErrInvalidKey   = errors.New("invalid template key format")
	ErrParseFailed  = errors.New("template parse error")
	ErrRenderFailed = errors.New("template render error")
	ErrTooLarge     = errors.New("template exceeds size limit")
	ErrNoStore      = errors.New("email template store not configured")
)

const (
	KeyContactNotification = "contact.notification"
	KeyContactConfirmation = "contact.confirmation"
)

const (
	MaxSubjectLen = 1000
	MaxHTMLLen    = 256000
)

const (
	SourceBuiltin = "builtin"
	SourceCustom  = "custom"
)

// Keys are lowercase dotted names with at least two segments, such as
// "contact.confirmation".
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9_]*)+$`)

func ValidateKey(key string) error {
	if keyPattern.MatchString(key) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKey, key)
}

// Template is an override held by a TemplateStore.
type Template struct {
	TemplateKey     string    `json:"templateKey"`
	SubjectTemplate string    `json:"subjectTemplate"`
	HTMLTemplate    string    `json:"htmlTemplate"`
	Enabled         bool      `json:"enabled"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// EffectiveTemplate is what a key renders from right now.
type EffectiveTemplate struct {
	Source          string   `json:"source"`
	TemplateKey     string   `json:"templateKey"`
	SubjectTemplate string   `json:"subjectTemplate"`
	HTMLTemplate    string   `json:"htmlTemplate"`
	Enabled         bool     `json:"enabled"`
	Variables       []string `json:"variables,omitempty"`
}

type BuiltinTemplate struct {
	SubjectTemplate string
	HTMLTemplate    string
	Variables       []string
}

func (b BuiltinTemplate) effective(key string) EffectiveTemplate {
	return EffectiveTemplate{
		Source:          SourceBuiltin,
		TemplateKey:     key,
		SubjectTemplate: b.SubjectTemplate,
		HTMLTemplate:    b.HTMLTemplate,
		Enabled:         true,
		Variables:       b.Variables,
	}
}

// DefaultBuiltins returns the two contact emails shipped in the mailer
// package. It panics if an embedded body is missing.
func DefaultBuiltins() map[string]BuiltinTemplate {
	defs := map[string]struct{ subject, file string }{
		KeyContactNotification: {mailer.DefaultContactNotificationSubject, "contact_notification.html"},
		KeyContactConfirmation: {mailer.DefaultContactConfirmationSubject, "contact_confirmation.html"},
	}
	out := make(map[string]BuiltinTemplate, len(defs))
	for key, def := range defs {
		body, err := mailer.BuiltinHTMLTemplate(def.file)
		if err != nil {
			panic(fmt.Sprintf("missing built-in email template %q: %v", def.file, err))
		}
		out[key] = BuiltinTemplate{
			SubjectTemplate: def.subject,
			HTMLTemplate:    body,
			Variables:       mailer.TemplateVariables,
		}
	}
	return out
}

// TemplateStore persists overrides. Get returns ErrNotFound for a key
// without one.
type TemplateStore interface {
	Upsert(ctx context.Context, key, subjectTpl, htmlTpl string) (*Template, error)
	Get(ctx context.Context, key string) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
	Delete(ctx context.Context, key string) error
	SetEnabled(ctx context.Context, key string, enabled bool) error
}

// checkTemplate is run by stores before saving an override.
func checkTemplate(key, subjectTpl, htmlTpl string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	switch {
	case len(subjectTpl) > MaxSubjectLen:
		return fmt.Errorf("%w: subject exceeds %d characters", ErrTooLarge, MaxSubjectLen)
	case len(htmlTpl) > MaxHTMLLen:
		return fmt.Errorf("%w: html exceeds %d characters", ErrTooLarge, MaxHTMLLen)
	}
	_, err := compile(key, subjectTpl, htmlTpl)
	return err
}

// Service renders and sends templates. The zero store is valid: only the
// built-ins are served and every write returns ErrNoStore.
type Service struct {
	store    TemplateStore
	builtins map[string]BuiltinTemplate
	logger   *slog.Logger

	mu     sync.RWMutex
	mailer mailer.Mailer
}

func NewService(store TemplateStore, builtins map[string]BuiltinTemplate) *Service {
	return &Service{
		store:    store,
		builtins: builtins,
		logger:   slog.Default(),
	}
}

func (s *Service) SetLogger(l *slog.Logger) {
	s.logger = l
}

// SetMailer sets the mailer used by Send.
func (s *Service) SetMailer(m mailer.Mailer) {
	s.mu.Lock()
	s.mailer = m
	s.mu.Unlock()
}

func (s *Service) List(ctx context.Context) ([]*Template, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List(ctx)
}

func (s *Service) Upsert(ctx context.Context, key, subjectTpl, htmlTpl string) (*Template, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.Upsert(ctx, key, subjectTpl, htmlTpl)
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.store.Delete(ctx, key)
}

func (s *Service) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.store.SetEnabled(ctx, key, enabled)
}

// SystemKeys lists the built-ins sorted by key.
func (s *Service) SystemKeys() []EffectiveTemplate {
	keys := slices.Sorted(maps.Keys(s.builtins))
	out := make([]EffectiveTemplate, len(keys))
	for i, key := range keys {
		out[i] = s.builtins[key].effective(key)
	}
	return out
}

// override returns the stored override for key, or nil when there is no
// store or no override.
func (s *Service) override(ctx context.Context, key string) (*Template, error) {
	if s.store == nil {
		return nil, nil
	}
	t, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// Render renders key from its enabled override, or from the built-in when
// there is none or the override fails to render. Store errors are returned.
func (s *Service) Render(ctx context.Context, key string, vars map[string]string) (*RenderedEmail, error) {
	return s.render(ctx, key, vars, false)
}

// RenderWithFallback is Render, except that a store error is logged and the
// built-in used instead.
func (s *Service) RenderWithFallback(ctx context.Context, key string, vars map[string]string) (*RenderedEmail, error) {
	return s.render(ctx, key, vars, true)
}

func (s *Service) render(ctx context.Context, key string, vars map[string]string, tolerateStore bool) (*RenderedEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	builtin, hasBuiltin := s.builtins[key]

	custom, err := s.override(ctx, key)
	if err != nil {
		if !tolerateStore {
			return nil, fmt.Errorf("loading custom template %q: %w", key, err)
		}
		s.logger.Error("loading custom email template failed, using built-in", "key", key, "error", err)
		custom = nil
	}

	var customErr error
	if custom != nil && custom.Enabled {
		subject := custom.SubjectTemplate
		if subject == "" {
			subject = builtin.SubjectTemplate
		}
		out, err := renderTemplates(ctx, key, subject, custom.HTMLTemplate, vars)
		if err == nil {
			return out, nil
		}
		customErr = err
		s.logger.Error("custom email template failed to render, using built-in", "key", key, "error", err)
	}

	switch {
	case hasBuiltin:
		return renderTemplates(ctx, key, builtin.SubjectTemplate, builtin.HTMLTemplate, vars)
	case customErr != nil:
		return nil, customErr
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoTemplate, key)
	}
}

// GetEffective reports which source key renders from. A disabled override
// is reported only for keys without a built-in.
func (s *Service) GetEffective(ctx context.Context, key string) (*EffectiveTemplate, error) {
	custom, err := s.override(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("getting custom template %q: %w", key, err)
	}
	builtin, hasBuiltin := s.builtins[key]

	if custom == nil || (!custom.Enabled && hasBuiltin) {
		if !hasBuiltin {
			return nil, fmt.Errorf("%w: %q", ErrNoTemplate, key)
		}
		eff := builtin.effective(key)
		return &eff, nil
	}

	eff := &EffectiveTemplate{
		Source:          SourceCustom,
		TemplateKey:     key,
		SubjectTemplate: custom.SubjectTemplate,
		HTMLTemplate:    custom.HTMLTemplate,
		Enabled:         custom.Enabled,
		Variables:       builtin.Variables,
	}
	if eff.SubjectTemplate == "" {
		eff.SubjectTemplate = builtin.SubjectTemplate
	}
	return eff, nil
}

// Preview renders unsaved sources.
func (s *Service) Preview(ctx context.Context, key, subjectTpl, htmlTpl string, vars map[string]string) (*RenderedEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	return renderTemplates(ctx, key, subjectTpl, htmlTpl, vars)
}

// Send renders key into msg and hands it to the mailer. msg carries the
// envelope; a Subject already set on it is kept as a prefix.
func (s *Service) Send(ctx context.Context, key string, msg *mailer.Message, vars map[string]string) error {
	s.mu.RLock()
	m := s.mailer
	s.mu.RUnlock()
	if m == nil {
		return errors.New("mailer not configured")
	}

	out, err := s.RenderWithFallback(ctx, key, vars)
	if err != nil {
		return err
	}
	msg.Subject += out.Subject
	msg.HTML = out.HTML
	msg.Text = out.Text
	return m.Send(ctx, msg)
}
