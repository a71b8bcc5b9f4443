package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/cli/ui"
	"github.com/jalaprana/site/internal/config"
	"github.com/jalaprana/site/internal/contact"
	"github.com/jalaprana/site/internal/emailtemplates"
	"github.com/jalaprana/site/internal/mailer"
	"github.com/jalaprana/site/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the HTTP server",
	Long: `Start the Jalaprana HTTP server: the phone number API, the contact form
endpoint and, when admin.token is set, the admin API.

Configuration is read from jalaprana.toml, then JALAPRANA_* environment
variables, then the flags below.`,
	Example: `jalaprana serve
jalaprana serve --port 3000 --email-backend log
jalaprana serve --test-mode`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Server port (default 8080)")
	serveCmd.Flags().String("host", "", "Server host (default 0.0.0.0)")
	serveCmd.Flags().String("config", "", "Path to jalaprana.toml config file")
	serveCmd.Flags().String("email-backend", "", "Email backend: log, smtp or webhook")
	serveCmd.Flags().Bool("test-mode", false, "Prefix contact email subjects with [TEST]")
}

// serveFlags collects the flag overrides passed to config.Load.
func serveFlags(cmd *cobra.Command) map[string]string {
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		flags["port"] = strconv.Itoa(v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		flags["host"] = v
	}
	if v, _ := cmd.Flags().GetString("email-backend"); v != "" {
		flags["email-backend"] = v
	}
	if cmd.Flags().Changed("test-mode") {
		v, _ := cmd.Flags().GetBool("test-mode")
		flags["test-mode"] = strconv.FormatBool(v)
	}
	return flags
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, serveFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Catch signals before any startup work.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	isTTY := colorEnabled()
	sp := newStartupProgress(os.Stderr, isTTY)

	bufferSize := 0
	if cfg.Admin.Token != "" {
		bufferSize = cfg.Admin.LogBufferSize
	}
	logger, logLevel, logBuf := newLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, bufferSize)
	// Startup steps replace INFO lines on a terminal.
	if isTTY {
		logLevel.Set(slog.LevelWarn)
	}

	sp.header(bannerVersion(buildVersion))

	sp.step("Checking port...")
	if ln, err := net.Listen("tcp", cfg.Address()); err != nil {
		sp.fail()
		return portError(cfg.Server.Port, err)
	} else {
		ln.Close()
	}
	sp.done()

	sp.step("Configuring email...")
	m := buildMailer(cfg, logger)
	sp.done(cfg.Email.Backend)

	sp.step("Loading email templates...")
	templates := buildTemplates(cfg, logger)
	templates.SetMailer(m)
	if cfg.Email.TemplatesDir != "" {
		sp.done(cfg.Email.TemplatesDir)
	} else {
		sp.done("built-in")
	}

	var contactSvc *contact.Service
	if cfg.Contact.Recipient != "" {
		contactSvc = contact.NewService(contact.Config{
			AppName:        ui.BrandName,
			Recipient:      cfg.Contact.Recipient,
			DefaultCountry: cfg.DefaultCountry(),
			TestMode:       cfg.Contact.TestMode,
		}, m, templates, logger)
	}

	srv := server.New(cfg, logger, contactSvc, templates)
	if logBuf != nil {
		srv.SetLogBuffer(logBuf)
	}

	sp.step("Starting server...")
	errCh := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		errCh <- srv.StartWithReady(ready)
	}()

	select {
	case <-ready:
		sp.done()
		if isTTY {
			logLevel.Set(parseSlogLevel(cfg.Logging.Level))
		}
		printBanner(os.Stderr, cfg, isTTY)
	case err := <-errCh:
		sp.fail()
		return portError(cfg.Server.Port, err)
	case <-sigCh:
		sp.stop()
		return nil
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		fmt.Fprintf(os.Stderr, "\n  Shutting down... (press Ctrl-C again to force)\n")
		signal.Stop(sigCh) // a second Ctrl-C gets Go's default handling and exits

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}

func buildMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	switch cfg.Email.Backend {
	case "smtp":
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:       cfg.Email.SMTP.Host,
			Port:       cfg.Email.SMTP.Port,
			Username:   cfg.Email.SMTP.Username,
			Password:   cfg.Email.SMTP.Password,
			From:       cfg.Email.From,
			FromName:   cfg.Email.FromName,
			TLS:        cfg.Email.SMTP.TLS,
			AuthMethod: cfg.Email.SMTP.AuthMethod,
		})
	case "webhook":
		return mailer.NewWebhookMailer(mailer.WebhookConfig{
			URL:     cfg.Email.Webhook.URL,
			Secret:  cfg.Email.Webhook.Secret,
			Timeout: time.Duration(cfg.Email.Webhook.Timeout) * time.Second,
		})
	default:
		return mailer.NewLogMailer(logger)
	}
}

// buildTemplates returns the template service, reading overrides from
// email.templates_dir when it is set.
func buildTemplates(cfg *config.Config, logger *slog.Logger) *emailtemplates.Service {
	var store emailtemplates.TemplateStore
	if cfg.Email.TemplatesDir != "" {
		store = emailtemplates.NewFileStore(cfg.Email.TemplatesDir)
	}
	svc := emailtemplates.NewService(store, emailtemplates.DefaultBuiltins())
	svc.SetLogger(logger)
	return svc
}

// newLogger builds the process logger writing to w. When bufferSize is
// positive the records are also kept in a LogBuffer for /api/admin/logs.
// The returned LevelVar adjusts the level at runtime.
func newLogger(w io.Writer, level, format string, bufferSize int) (*slog.Logger, *slog.LevelVar, *server.LogBuffer) {
	var lvl slog.LevelVar
	lvl.Set(parseSlogLevel(level))
	opts := &slog.HandlerOptions{Level: &lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	if bufferSize <= 0 {
		return slog.New(handler), &lvl, nil
	}
	lb := server.NewLogBuffer(handler, bufferSize)
	return slog.New(lb), &lvl, lb
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startupProgress shows startup steps on a terminal. Without one every
// method is a no-op and the structured log carries the information.
type startupProgress struct {
	w       io.Writer
	spinner *ui.StepSpinner
	active  bool
}

func newStartupProgress(w io.Writer, active bool) *startupProgress {
	return &startupProgress{w: w, spinner: ui.NewStepSpinner(w, !active), active: active}
}

func (sp *startupProgress) header(version string) {
	if !sp.active {
		return
	}
	fmt.Fprintf(sp.w, "\n  %s %s\n\n", ui.BrandEmoji, boldCyan(fmt.Sprintf("%s v%s", ui.BrandName, version), true))
}

func (sp *startupProgress) step(msg string) {
	if sp.active {
		sp.spinner.Start(msg)
	}
}

func (sp *startupProgress) done(detail ...string) {
	if sp.active {
		sp.spinner.Done(detail...)
	}
}

func (sp *startupProgress) fail() {
	if sp.active {
		sp.spinner.Fail()
	}
}

func (sp *startupProgress) stop() {
	if sp.active {
		sp.spinner.Stop()
	}
}

// HintError is an error that comes with commands the user can try next.
// main renders it with ui.FormatError.
type HintError struct {
	Msg   string
	Hints []string
}

func (e *HintError) Error() string { return e.Msg }

// portError adds suggestions to an "address already in use" error.
func portError(port int, err error) error {
	if strings.Contains(err.Error(), "address already in use") {
		return &HintError{
			Msg: fmt.Sprintf("port %d is already in use", port),
			Hints: []string{
				fmt.Sprintf("jalaprana serve --port %d   # use a different port", port+1),
				fmt.Sprintf("lsof -i :%d                 # find what holds it", port),
			},
		}
	}
	return err
}

// printBanner writes the human-readable summary shown once the server
// listens.
func printBanner(w io.Writer, cfg *config.Config, color bool) {
	label := func(s string) string {
		return bold(fmt.Sprintf("%-10s", s), color)
	}
	base := cfg.PublicBaseURL()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", label("Site:"), cyan(base, color))
	fmt.Fprintf(w, "  %s %s\n", label("API:"), cyan(base+"/api/phone/countries", color))

	if cfg.Contact.Recipient != "" {
		fmt.Fprintf(w, "  %s %s %s\n", label("Contact:"), cfg.Contact.Recipient, dim("via "+cfg.Email.Backend, color))
	} else {
		fmt.Fprintf(w, "  %s %s\n", label("Contact:"), yellow("disabled (contact.recipient is not set)", color))
	}

	if len(cfg.Access.AllowedIPs) > 0 {
		fmt.Fprintf(w, "  %s restricted to %s\n", label("Access:"), strings.Join(cfg.Access.AllowedIPs, ", "))
	} else {
		fmt.Fprintf(w, "  %s %s\n", label("Access:"), "open")
	}

	if cfg.Admin.Token != "" {
		fmt.Fprintf(w, "  %s %s\n", label("Admin:"), cyan(base+"/api/admin", color))
	}

	if cfg.Contact.TestMode {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s\n", yellow(ui.SymbolWarning+" Test mode: contact emails are tagged [TEST]", color))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", dim("Try:", color))
	fmt.Fprintf(w, "%s\n", green(fmt.Sprintf(`curl -s -X POST %s/api/phone/format -H 'Content-Type: application/json' -d '{"country":"FR","digits":"612345678"}'`, base), color))
	fmt.Fprintf(w, "%s\n", green("jalaprana phone try --country CH", color))
	fmt.Fprintln(w)
}
