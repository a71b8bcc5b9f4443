package mailer

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const smtpTimeout = 15 * time.Second

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	TLS        bool   // implicit TLS (usually port 465); otherwise STARTTLS when offered
	AuthMethod string // PLAIN (default), LOGIN, CRAM-MD5
}

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	gm := gomail.NewMsg()
	if err := gm.From(m.formatFrom()); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := gm.To(msg.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := gm.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("smtp reply-to: %w", err)
		}
	}
	gm.Subject(msg.Subject)
	for k, v := range msg.Headers {
		gm.SetGenHeader(gomail.Header(k), v)
	}
	if msg.Text != "" {
		gm.SetBodyString(gomail.TypeTextPlain, msg.Text)
		if msg.HTML != "" {
			gm.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
		}
	} else {
		gm.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	}

	client, err := gomail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(smtpTimeout),
	}
	if m.cfg.TLS {
		opts = append(opts, gomail.WithSSLPort(false))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(m.authType()),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) formatFrom() string {
	if m.cfg.FromName == "" {
		return m.cfg.From
	}
	return fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
}

func (m *SMTPMailer) authType() gomail.SMTPAuthType {
	switch m.cfg.AuthMethod {
	case "LOGIN":
		return gomail.SMTPAuthLogin
	case "CRAM-MD5":
		return gomail.SMTPAuthCramMD5
	default:
		return gomail.SMTPAuthPlain
	}
}
