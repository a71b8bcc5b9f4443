package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/config"
	"github.com/jalaprana/site/internal/emailtemplates"
	"github.com/jalaprana/site/internal/mailer"
	"github.com/jalaprana/site/internal/testutil"
)

func TestServeFlagsDefined(t *testing.T) {
	for _, name := range []string{"port", "host", "config", "email-backend", "test-mode"} {
		testutil.NotNil(t, serveCmd.Flags().Lookup(name))
	}
}

func TestServeFlagsOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().String("host", "", "")
	cmd.Flags().String("email-backend", "", "")
	cmd.Flags().Bool("test-mode", false, "")

	testutil.MapLen(t, serveFlags(cmd), 0)

	testutil.NoError(t, cmd.Flags().Set("port", "3000"))
	testutil.NoError(t, cmd.Flags().Set("email-backend", "smtp"))
	testutil.NoError(t, cmd.Flags().Set("test-mode", "false"))
	flags := serveFlags(cmd)
	testutil.MapLen(t, flags, 3)
	testutil.Equal(t, "3000", flags["port"])
	testutil.Equal(t, "smtp", flags["email-backend"])
	testutil.Equal(t, "false", flags["test-mode"])
}

func TestParseSlogLevel(t *testing.T) {
	testutil.Equal(t, slog.LevelDebug, parseSlogLevel("debug"))
	testutil.Equal(t, slog.LevelInfo, parseSlogLevel("info"))
	testutil.Equal(t, slog.LevelWarn, parseSlogLevel("warn"))
	testutil.Equal(t, slog.LevelError, parseSlogLevel("error"))
	testutil.Equal(t, slog.LevelInfo, parseSlogLevel("chatty"))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, lvl, lb := newLogger(&buf, "warn", "json", 0)
	testutil.Nil(t, lb)

	logger.Info("hidden")
	logger.Warn("shown", "port", 8080)
	testutil.False(t, strings.Contains(buf.String(), "hidden"), "info logged at warn level")

	var rec map[string]any
	testutil.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	testutil.Equal(t, "shown", rec["msg"].(string))

	lvl.Set(slog.LevelInfo)
	logger.Info("now visible")
	testutil.Contains(t, buf.String(), "now visible")
}

func TestNewLoggerTextWithBuffer(t *testing.T) {
	var buf bytes.Buffer
	logger, _, lb := newLogger(&buf, "info", "text", 10)
	testutil.NotNil(t, lb)

	logger.Info("contact submitted", "country", "CH")
	testutil.Contains(t, buf.String(), "msg=\"contact submitted\"")

	entries := lb.Entries()
	testutil.SliceLen(t, entries, 1)
	testutil.Equal(t, "contact submitted", entries[0].Message)
}

func TestBuildMailer(t *testing.T) {
	cfg := config.Default()
	logger := testutil.DiscardLogger()

	_, ok := buildMailer(cfg, logger).(*mailer.LogMailer)
	testutil.True(t, ok, "expected log mailer by default")

	cfg.Email.Backend = "smtp"
	cfg.Email.SMTP.Host = "smtp.example.com"
	_, ok = buildMailer(cfg, logger).(*mailer.SMTPMailer)
	testutil.True(t, ok, "expected smtp mailer")

	cfg.Email.Backend = "webhook"
	cfg.Email.Webhook.URL = "https://hooks.example.com/mail"
	_, ok = buildMailer(cfg, logger).(*mailer.WebhookMailer)
	testutil.True(t, ok, "expected webhook mailer")
}

func TestBuildTemplatesStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	svc := buildTemplates(cfg, testutil.DiscardLogger())
	_, err := svc.Upsert(ctx, "contact.confirmation", "Hi", "<p>Hi</p>")
	testutil.True(t, errors.Is(err, emailtemplates.ErrNoStore), "expected ErrNoStore, got %v", err)

	cfg.Email.TemplatesDir = t.TempDir()
	svc = buildTemplates(cfg, testutil.DiscardLogger())
	_, err = svc.Upsert(ctx, "contact.confirmation", "Hi", "<p>Hi</p>")
	testutil.NoError(t, err)

	eff, err := svc.GetEffective(ctx, "contact.confirmation")
	testutil.NoError(t, err)
	testutil.Equal(t, "custom", eff.Source)
}

func TestPortError(t *testing.T) {
	err := portError(8080, errors.New("listen tcp 0.0.0.0:8080: bind: address already in use"))
	var he *HintError
	testutil.True(t, errors.As(err, &he), "expected *HintError, got %T", err)
	testutil.Equal(t, "port 8080 is already in use", he.Error())
	testutil.SliceLen(t, he.Hints, 2)
	testutil.Contains(t, he.Hints[0], "--port 8081")

	other := errors.New("permission denied")
	testutil.Equal(t, other, portError(80, other))
}

func TestPrintBanner(t *testing.T) {
	cfg := config.Default()
	var buf bytes.Buffer
	printBanner(&buf, cfg, false)
	out := buf.String()

	testutil.Contains(t, out, "http://localhost:8080")
	testutil.Contains(t, out, "/api/phone/countries")
	testutil.Contains(t, out, "disabled (contact.recipient is not set)")
	testutil.Contains(t, out, "open")
	testutil.False(t, strings.Contains(out, "Admin:"), "admin line shown without a token")
	testutil.False(t, strings.Contains(out, "Test mode"), "test mode shown when off")
	testutil.False(t, strings.Contains(out, "\x1b["), "ANSI codes with color off")
}

func TestPrintBannerConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SiteURL = "https://jalaprana.example/"
	cfg.Contact.Recipient = "practitioner@example.com"
	cfg.Contact.TestMode = true
	cfg.Access.AllowedIPs = []string{"203.0.113.7", "198.51.100.0/24"}
	cfg.Admin.Token = "0123456789abcdef"

	var buf bytes.Buffer
	printBanner(&buf, cfg, false)
	out := buf.String()

	testutil.Contains(t, out, "https://jalaprana.example/api/phone/countries")
	testutil.Contains(t, out, "practitioner@example.com via log")
	testutil.Contains(t, out, "restricted to 203.0.113.7, 198.51.100.0/24")
	testutil.Contains(t, out, "https://jalaprana.example/api/admin")
	testutil.Contains(t, out, "Test mode")
}

func TestStartupProgressInactiveWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	sp := newStartupProgress(&buf, false)
	sp.header("1.0.0")
	sp.step("Checking port...")
	sp.done()
	sp.fail()
	sp.stop()
	testutil.Equal(t, "", buf.String())
}
