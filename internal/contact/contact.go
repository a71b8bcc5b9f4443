// Package contact handles contact form submissions: it validates the
// visitor's details, normalizes the phone number and sends the notification
// and confirmation emails.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jalaprana/site/internal/emailtemplates"
	"github.com/jalaprana/site/internal/mailer"
	"github.com/jalaprana/site/internal/phone"
)

// User-facing messages returned by the contact endpoint.
const (
	MsgMissingFields = "Tous les champs sont requis"
	MsgSent          = "Email envoyé avec succès"
	MsgServerError   = "Erreur serveur interne"
	MsgInvalidFields = "Certains champs sont invalides"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalid       = errors.New("invalid submission")
	ErrSendFailed    = errors.New("sending notification email")
)

// Submission is the form payload. Country is optional and may be an ISO
// code ("CH") or left empty, in which case it is detected from the phone
// number's dialing prefix.
type Submission struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Country string `json:"country" validate:"omitempty,max=64"`
	Message string `json:"message" validate:"required,max=5000"`
}

// FieldError is one rejected field of a Submission.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError lists every rejected field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Receipt describes an accepted submission.
type Receipt struct {
	ID       string
	Country  phone.Country
	E164     string
	TestMode bool
}

// Config holds the site-level settings the service needs.
type Config struct {
	AppName        string
	Recipient      string
	DefaultCountry phone.Code
	TestMode       bool
}

// Service processes contact form submissions.
type Service struct {
	cfg       Config
	registry  *phone.Registry
	templates *emailtemplates.Service
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService returns a Service sending through m. A nil templates service
// renders the built-in templates only; a non-nil one is switched to m.
func NewService(cfg Config, m mailer.Mailer, templates *emailtemplates.Service, logger *slog.Logger) *Service {
	if templates == nil {
		templates = emailtemplates.NewService(nil, emailtemplates.DefaultBuiltins())
		templates.SetLogger(logger)
	}
	templates.SetMailer(m)
	if cfg.AppName == "" {
		cfg.AppName = "Jalaprana"
	}
	return &Service{
		cfg:       cfg,
		registry:  phone.DefaultRegistry(),
		templates: templates,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
}

// Validate checks s and returns the country the phone number belongs to.
// Missing fields yield ErrMissingFields; anything else malformed yields a
// *ValidationError.
func (svc *Service) Validate(s *Submission) (phone.Country, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Message = strings.TrimSpace(s.Message)
	if s.Name == "" || s.Email == "" || s.Phone == "" || s.Message == "" {
		return phone.Country{}, ErrMissingFields
	}

	var fields []FieldError
	if err := svc.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return phone.Country{}, fmt.Errorf("validating submission: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   strings.ToLower(fe.Field()),
				Code:    fe.Tag(),
				Message: fieldMessage(fe),
			})
		}
	}

	country := svc.countryFor(s)
	if err := phone.ValidationError(s.Phone, country); err != nil {
		fields = append(fields, FieldError{Field: "phone", Code: phoneErrorCode(err), Message: err.Error()})
	}

	if len(fields) > 0 {
		return country, &ValidationError{Fields: fields}
	}
	return country, nil
}

// countryFor resolves the phone country: an explicit code wins, otherwise
// the number's dialing prefix, otherwise the configured default.
func (svc *Service) countryFor(s *Submission) phone.Country {
	if code, ok := phone.ParseCode(s.Country); ok {
		return svc.registry.Lookup(code)
	}
	if strings.HasPrefix(s.Phone, "+") || strings.HasPrefix(s.Phone, "(") {
		return svc.registry.Detect(s.Phone)
	}
	return svc.registry.Lookup(svc.cfg.DefaultCountry)
}

// Submit validates s and sends the notification to the site owner, then a
// confirmation to the visitor. Only a failed notification fails the call.
func (svc *Service) Submit(ctx context.Context, s Submission) (*Receipt, error) {
	country, err := svc.Validate(&s)
	if err != nil {
		return nil, err
	}

	// Numbers phonenumbers cannot parse are still delivered as typed.
	e164, _ := phone.NormalizeE164(s.Phone, country)

	receipt := &Receipt{
		ID:       uuid.NewString(),
		Country:  country,
		E164:     e164,
		TestMode: svc.cfg.TestMode,
	}
	logger := svc.logger.With("submission_id", receipt.ID)
	logger.Info("contact form submission",
		"country", country.Code,
		"phone_e164", e164,
		"test_mode", svc.cfg.TestMode,
	)

	data := mailer.TemplateData{
		AppName:    svc.cfg.AppName,
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Country:    country.Name,
		Message:    s.Message,
		ReceivedAt: mailer.FormatDateFR(svc.now()),
	}
	vars := data.Vars()

	notification := &mailer.Message{
		To:      svc.cfg.Recipient,
		ReplyTo: s.Email,
		Subject: svc.subjectPrefix("[TEST] "),
		Headers: map[string]string{"X-Submission-ID": receipt.ID},
	}
	if svc.cfg.TestMode {
		notification.Headers["X-Test-Mode"] = "true"
	}
	if err := svc.templates.Send(ctx, emailtemplates.KeyContactNotification, notification, vars); err != nil {
		logger.Error("notification email failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	logger.Info("notification email sent", "to", svc.cfg.Recipient)

	confirmation := &mailer.Message{
		To:      s.Email,
		Subject: svc.subjectPrefix("[TEST - Confirmation] "),
	}
	if err := svc.templates.Send(ctx, emailtemplates.KeyContactConfirmation, confirmation, vars); err != nil {
		logger.Warn("confirmation email failed", "error", err)
	} else {
		logger.Info("confirmation email sent")
	}

	return receipt, nil
}

func (svc *Service) subjectPrefix(p string) string {
	if svc.cfg.TestMode {
		return p
	}
	return ""
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

func phoneErrorCode(err error) string {
	switch {
	case errors.Is(err, phone.ErrIncomplete):
		return "incomplete"
	case errors.Is(err, phone.ErrMobilePrefix):
		return "mobile_prefix"
	default:
		return "invalid_format"
	}
}
