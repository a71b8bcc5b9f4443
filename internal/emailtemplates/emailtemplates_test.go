package emailtemplates

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jalaprana/site/internal/mailer"
	"github.com/jalaprana/site/internal/testutil"
)

type stubTemplateStore struct {
	getFn func(ctx context.Context, key string) (*Template, error)
}

func (s *stubTemplateStore) Upsert(ctx context.Context, key, subjectTpl, htmlTpl string) (*Template, error) {
	return nil, errors.New("unexpected Upsert call")
}

func (s *stubTemplateStore) Get(ctx context.Context, key string) (*Template, error) {
	if s.getFn != nil {
		return s.getFn(ctx, key)
	}
	return nil, ErrNotFound
}

func (s *stubTemplateStore) List(ctx context.Context) ([]*Template, error) { return nil, nil }

func (s *stubTemplateStore) Delete(ctx context.Context, key string) error { return ErrNotFound }

func (s *stubTemplateStore) SetEnabled(ctx context.Context, key string, enabled bool) error {
	return ErrNotFound
}

// captureMailer records every message it is asked to send.
type captureMailer struct {
	sent []*mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg *mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func confirmationBuiltins() map[string]BuiltinTemplate {
	return map[string]BuiltinTemplate{
		KeyContactConfirmation: {
			SubjectTemplate: "Confirmation pour {{.Name}}",
			HTMLTemplate:    "<p>Merci {{.Name}}</p>",
			Variables:       []string{"Name"},
		},
	}
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	valid := []string{
		"contact.notification",
		"contact.confirmation",
		"booking.reminder_24h",
		"a.b",
		"x.y.z",
	}
	for _, key := range valid {
		testutil.NoError(t, ValidateKey(key))
	}

	invalid := []string{
		"",
		"singleword",
		".leading.dot",
		"trailing.",
		"Upper.case",
		"contact..double",
		"../etc/passwd",
		"contact/notification",
	}
	for _, key := range invalid {
		err := ValidateKey(key)
		testutil.True(t, errors.Is(err, ErrInvalidKey), "should be ErrInvalidKey for %q", key)
	}
}

func TestRenderTemplates_Basic(t *testing.T) {
	t.Parallel()

	rendered, err := renderTemplates(context.Background(), "test.basic",
		"Bonjour {{.Name}}",
		"<p>Bienvenue {{.Name}} chez {{.AppName}}</p>",
		map[string]string{"Name": "Alice", "AppName": "Jalaprana"},
	)
	testutil.NoError(t, err)
	testutil.Equal(t, "Bonjour Alice", rendered.Subject)
	testutil.Contains(t, rendered.HTML, "Bienvenue Alice chez Jalaprana")
	testutil.Equal(t, "Bienvenue Alice chez Jalaprana", rendered.Text)
}

func TestRenderTemplates_MissingVariable(t *testing.T) {
	t.Parallel()

	_, err := renderTemplates(context.Background(), "test.missing",
		"Bonjour {{.Name}}", "<p>Bonjour</p>", map[string]string{})
	testutil.True(t, errors.Is(err, ErrRenderFailed), "subject: should be ErrRenderFailed, got %v", err)

	_, err = renderTemplates(context.Background(), "test.missing_html",
		"Subject", "<p>Bonjour {{.Name}}</p>", map[string]string{})
	testutil.True(t, errors.Is(err, ErrRenderFailed), "html: should be ErrRenderFailed, got %v", err)
}

func TestRenderTemplates_InvalidTemplateSyntax(t *testing.T) {
	t.Parallel()

	_, err := renderTemplates(context.Background(), "test.bad_subject",
		"Bonjour {{.Name", "<p>OK</p>", map[string]string{"Name": "Alice"})
	testutil.True(t, errors.Is(err, ErrParseFailed), "should be ErrParseFailed for bad subject")

	_, err = renderTemplates(context.Background(), "test.bad_html",
		"OK", "<p>Bonjour {{.Name</p>", map[string]string{"Name": "Alice"})
	testutil.True(t, errors.Is(err, ErrParseFailed), "should be ErrParseFailed for bad HTML")
}

func TestRenderTemplates_HTMLAutoEscaping(t *testing.T) {
	t.Parallel()

	rendered, err := renderTemplates(context.Background(), "test.escape",
		"Subject",
		"<p>Message: {{.Message}}</p>",
		map[string]string{"Message": `<script>alert("xss")</script> O'Brien & Co`},
	)
	testutil.NoError(t, err)
	testutil.False(t, strings.Contains(rendered.HTML, "<script>"), "script tag must be escaped")
	testutil.Contains(t, rendered.HTML, "&lt;script&gt;")
	testutil.Contains(t, rendered.HTML, "O&#39;Brien &amp; Co")
	testutil.Contains(t, rendered.Text, "O'Brien & Co")
}

func TestRenderTemplates_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := renderTemplates(ctx, "test.timeout", "Subject", "<p>Body</p>", map[string]string{})
	testutil.True(t, errors.Is(err, ErrRenderFailed), "should be ErrRenderFailed, got: %v", err)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"simple paragraph", "<p>Bonjour</p>", "Bonjour"},
		{"nested tags", "<div><h1>Titre</h1>\n<p>Corps</p></div>", "Titre\nCorps"},
		{"link with attributes", `<a href="mailto:a@b.c" style="color:green">Répondre</a>`, "Répondre"},
		{"whitespace collapse", "<p>  Bonjour  </p>\n\n\n<p>  Merci  </p>", "Bonjour\nMerci"},
		{"entities decoded", "<p>Bien-être &amp; Thérapies &lt;holistiques&gt;</p>", "Bien-être & Thérapies <holistiques>"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testutil.Equal(t, tc.want, stripHTML(tc.input))
		})
	}
}

func TestDefaultBuiltins(t *testing.T) {
	t.Parallel()

	builtins := DefaultBuiltins()
	testutil.MapLen(t, builtins, 2)

	vars := mailer.TemplateData{
		AppName: "Jalaprana",
		Name:    "Jean Dupont",
		Email:   "jean@example.com",
		Phone:   "+33 6 12 34 56 78",
		Country: "France",
		Message: "Bonjour",
	}.Vars()

	for _, key := range []string{KeyContactNotification, KeyContactConfirmation} {
		b, ok := builtins[key]
		testutil.True(t, ok, "DefaultBuiltins should contain %q", key)
		testutil.True(t, b.SubjectTemplate != "", "SubjectTemplate for %q should not be empty", key)
		testutil.SliceLen(t, b.Variables, len(mailer.TemplateVariables))

		rendered, err := renderTemplates(context.Background(), key, b.SubjectTemplate, b.HTMLTemplate, vars)
		testutil.NoError(t, err)
		testutil.Contains(t, rendered.HTML, "Jalaprana")
	}

	rendered, err := renderTemplates(context.Background(), KeyContactNotification,
		builtins[KeyContactNotification].SubjectTemplate, builtins[KeyContactNotification].HTMLTemplate, vars)
	testutil.NoError(t, err)
	testutil.Equal(t, "Nouveau message de Jean Dupont", rendered.Subject)

	rendered, err = renderTemplates(context.Background(), KeyContactConfirmation,
		builtins[KeyContactConfirmation].SubjectTemplate, builtins[KeyContactConfirmation].HTMLTemplate, vars)
	testutil.NoError(t, err)
	testutil.Equal(t, "Jalaprana - Confirmation de votre message", rendered.Subject)
}

func TestSystemKeys_DeterministicOrder(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, map[string]BuiltinTemplate{
		"contact.notification": {SubjectTemplate: "N"},
		"contact.confirmation": {SubjectTemplate: "C"},
		"booking.reminder":     {SubjectTemplate: "R"},
	})
	for i := 0; i < 10; i++ {
		keys := svc.SystemKeys()
		testutil.Equal(t, 3, len(keys))
		testutil.Equal(t, "booking.reminder", keys[0].TemplateKey)
		testutil.Equal(t, "contact.confirmation", keys[1].TemplateKey)
		testutil.Equal(t, "contact.notification", keys[2].TemplateKey)
	}
}

func TestServiceRender_BuiltinFallback(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, confirmationBuiltins())
	rendered, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Confirmation pour Jean", rendered.Subject)
	testutil.Contains(t, rendered.HTML, "Merci Jean")
}

func TestServiceRender_NoTemplate(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, map[string]BuiltinTemplate{})
	_, err := svc.Render(context.Background(), "nonexistent.key", map[string]string{})
	testutil.True(t, errors.Is(err, ErrNoTemplate), "should be ErrNoTemplate")

	_, err = svc.RenderWithFallback(context.Background(), "nonexistent.key", map[string]string{})
	testutil.True(t, errors.Is(err, ErrNoTemplate), "should be ErrNoTemplate")
}

func TestServiceRender_CustomTemplateSuccess(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			return &Template{
				TemplateKey:     key,
				SubjectTemplate: "Merci {{.Name}} !",
				HTMLTemplate:    "<p>Message personnalisé pour {{.Name}}</p>",
				Enabled:         true,
			}, nil
		},
	}
	svc := NewService(store, confirmationBuiltins())
	rendered, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Merci Jean !", rendered.Subject)
	testutil.Contains(t, rendered.HTML, "Message personnalisé")
}

func TestServiceRender_CustomWithoutSubjectUsesBuiltinSubject(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			return &Template{TemplateKey: key, HTMLTemplate: "<p>Perso</p>", Enabled: true}, nil
		},
	}
	svc := NewService(store, confirmationBuiltins())
	rendered, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Confirmation pour Jean", rendered.Subject)
	testutil.Contains(t, rendered.HTML, "Perso")
}

func TestServiceRender_DisabledCustomFallsBackToBuiltin(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			return &Template{TemplateKey: key, SubjectTemplate: "Custom", HTMLTemplate: "<p>Custom</p>"}, nil
		},
	}
	svc := NewService(store, confirmationBuiltins())
	rendered, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Confirmation pour Jean", rendered.Subject)
}

func TestServiceRender_CustomRenderFailsFallsBackToBuiltin(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			return &Template{
				TemplateKey:     key,
				SubjectTemplate: "Custom {{.MissingVar}}",
				HTMLTemplate:    "<p>Custom</p>",
				Enabled:         true,
			}, nil
		},
	}
	svc := NewService(store, confirmationBuiltins())
	svc.SetLogger(testutil.DiscardLogger())
	rendered, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Confirmation pour Jean", rendered.Subject)
}

func TestServiceRender_CustomOnlyRenderErrorIsReturned(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			return &Template{
				TemplateKey:     key,
				SubjectTemplate: "Rappel {{.Name}}",
				HTMLTemplate:    "<p>Séance le {{.Date}}</p>",
				Enabled:         true,
			}, nil
		},
	}
	svc := NewService(store, map[string]BuiltinTemplate{})
	svc.SetLogger(testutil.DiscardLogger())
	_, err := svc.Render(context.Background(), "booking.reminder", map[string]string{"Name": "Jean"})
	testutil.True(t, errors.Is(err, ErrRenderFailed), "should be ErrRenderFailed, got %v", err)
}

func TestServiceRender_StoreErrorIsReturned(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, _ string) (*Template, error) {
			return nil, errors.New("permission denied")
		},
	}
	svc := NewService(store, confirmationBuiltins())
	_, err := svc.Render(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.ErrorContains(t, err, "permission denied")
}

func TestServiceRenderWithFallback_StoreErrorFallsBackToBuiltin(t *testing.T) {
	t.Parallel()

	store := &stubTemplateStore{
		getFn: func(_ context.Context, _ string) (*Template, error) {
			return nil, errors.New("permission denied")
		},
	}
	svc := NewService(store, confirmationBuiltins())
	svc.SetLogger(testutil.DiscardLogger())
	rendered, err := svc.RenderWithFallback(context.Background(), KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Confirmation pour Jean", rendered.Subject)
	testutil.Equal(t, "Merci Jean", rendered.Text)
}

func TestServiceRender_ExpiredContext(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, confirmationBuiltins())
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := svc.Render(ctx, KeyContactConfirmation, map[string]string{"Name": "Jean"})
	testutil.True(t, errors.Is(err, ErrRenderFailed), "expired context should fail rendering, got %v", err)
}

func TestServiceGetEffective(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(nil, confirmationBuiltins())
	eff, err := svc.GetEffective(ctx, KeyContactConfirmation)
	testutil.NoError(t, err)
	testutil.Equal(t, "builtin", eff.Source)
	testutil.Equal(t, "Confirmation pour {{.Name}}", eff.SubjectTemplate)
	testutil.SliceLen(t, eff.Variables, 1)

	_, err = svc.GetEffective(ctx, "nonexistent.key")
	testutil.True(t, errors.Is(err, ErrNoTemplate), "should be ErrNoTemplate")
}

func TestServiceGetEffective_Custom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	enabled := true
	store := &stubTemplateStore{
		getFn: func(_ context.Context, key string) (*Template, error) {
			if key == "contact.notification" {
				return nil, errors.New("io error")
			}
			return &Template{TemplateKey: key, HTMLTemplate: "<p>Perso</p>", Enabled: enabled}, nil
		},
	}
	builtins := confirmationBuiltins()
	builtins["contact.notification"] = BuiltinTemplate{SubjectTemplate: "N", HTMLTemplate: "<p>N</p>"}
	svc := NewService(store, builtins)

	eff, err := svc.GetEffective(ctx, KeyContactConfirmation)
	testutil.NoError(t, err)
	testutil.Equal(t, "custom", eff.Source)
	testutil.Equal(t, "Confirmation pour {{.Name}}", eff.SubjectTemplate)

	// Disabled overrides report the builtin when one exists, the override otherwise.
	enabled = false
	eff, err = svc.GetEffective(ctx, KeyContactConfirmation)
	testutil.NoError(t, err)
	testutil.Equal(t, "builtin", eff.Source)
	eff, err = svc.GetEffective(ctx, "booking.reminder")
	testutil.NoError(t, err)
	testutil.Equal(t, "custom", eff.Source)
	testutil.False(t, eff.Enabled)

	_, err = svc.GetEffective(ctx, "contact.notification")
	testutil.ErrorContains(t, err, "io error")
}

func TestServicePreview(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil)
	rendered, err := svc.Preview(context.Background(), "test.preview",
		"Bienvenue {{.Name}}", "<h1>Bonjour {{.Name}}</h1>", map[string]string{"Name": "Bob"})
	testutil.NoError(t, err)
	testutil.Equal(t, "Bienvenue Bob", rendered.Subject)
	testutil.Contains(t, rendered.HTML, "Bonjour Bob")
}

func TestServiceWithoutStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewService(nil, nil)
	list, err := svc.List(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, list, 0)

	_, err = svc.Upsert(ctx, "a.b", "s", "<p>h</p>")
	testutil.True(t, errors.Is(err, ErrNoStore), "Upsert should fail without store")
	testutil.True(t, errors.Is(svc.Delete(ctx, "a.b"), ErrNoStore), "Delete should fail without store")
	testutil.True(t, errors.Is(svc.SetEnabled(ctx, "a.b", true), ErrNoStore), "SetEnabled should fail without store")
}

func TestServiceSend(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, confirmationBuiltins())
	err := svc.Send(context.Background(), KeyContactConfirmation, &mailer.Message{To: "jean@example.com"}, map[string]string{"Name": "Jean"})
	testutil.ErrorContains(t, err, "mailer not configured")

	m := &captureMailer{}
	svc.SetMailer(m)
	msg := &mailer.Message{To: "jean@example.com", Subject: "[TEST] "}
	err = svc.Send(context.Background(), KeyContactConfirmation, msg, map[string]string{"Name": "Jean"})
	testutil.NoError(t, err)
	testutil.SliceLen(t, m.sent, 1)
	testutil.Equal(t, "[TEST] Confirmation pour Jean", m.sent[0].Subject)
	testutil.Equal(t, "jean@example.com", m.sent[0].To)
	testutil.Equal(t, "Merci Jean", m.sent[0].Text)
}
