package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// setting binds a dotted config key to its field and, optionally, to the
// environment variable that overrides it. field returns a *string, *int,
// *bool or *[]string into c.
type setting struct {
	env   string
	field func(c *Config) any
}

var settings = map[string]setting{
	"server.host":                 {"JALAPRANA_SERVER_HOST", func(c *Config) any { return &c.Server.Host }},
	"server.port":                 {"JALAPRANA_SERVER_PORT", func(c *Config) any { return &c.Server.Port }},
	"server.site_url":             {"JALAPRANA_SERVER_SITE_URL", func(c *Config) any { return &c.Server.SiteURL }},
	"server.cors_allowed_origins": {"JALAPRANA_CORS_ORIGINS", func(c *Config) any { return &c.Server.CORSAllowedOrigins }},
	"server.shutdown_timeout":     {"", func(c *Config) any { return &c.Server.ShutdownTimeout }},

	"access.allowed_ips": {"JALAPRANA_ALLOWED_IPS", func(c *Config) any { return &c.Access.AllowedIPs }},
	"access.allow_local": {"JALAPRANA_ACCESS_ALLOW_LOCAL", func(c *Config) any { return &c.Access.AllowLocal }},

	"admin.token":           {"JALAPRANA_ADMIN_TOKEN", func(c *Config) any { return &c.Admin.Token }},
	"admin.log_buffer_size": {"", func(c *Config) any { return &c.Admin.LogBufferSize }},

	"contact.recipient":       {"JALAPRANA_CONTACT_RECIPIENT", func(c *Config) any { return &c.Contact.Recipient }},
	"contact.default_country": {"JALAPRANA_CONTACT_DEFAULT_COUNTRY", func(c *Config) any { return &c.Contact.DefaultCountry }},
	"contact.rate_limit":      {"JALAPRANA_CONTACT_RATE_LIMIT", func(c *Config) any { return &c.Contact.RateLimit }},
	"contact.test_mode":       {"JALAPRANA_CONTACT_TEST_MODE", func(c *Config) any { return &c.Contact.TestMode }},

	"email.backend":           {"JALAPRANA_EMAIL_BACKEND", func(c *Config) any { return &c.Email.Backend }},
	"email.from":              {"JALAPRANA_EMAIL_FROM", func(c *Config) any { return &c.Email.From }},
	"email.from_name":         {"JALAPRANA_EMAIL_FROM_NAME", func(c *Config) any { return &c.Email.FromName }},
	"email.templates_dir":     {"JALAPRANA_EMAIL_TEMPLATES_DIR", func(c *Config) any { return &c.Email.TemplatesDir }},
	"email.smtp.host":         {"JALAPRANA_EMAIL_SMTP_HOST", func(c *Config) any { return &c.Email.SMTP.Host }},
	"email.smtp.port":         {"JALAPRANA_EMAIL_SMTP_PORT", func(c *Config) any { return &c.Email.SMTP.Port }},
	"email.smtp.username":     {"JALAPRANA_EMAIL_SMTP_USERNAME", func(c *Config) any { return &c.Email.SMTP.Username }},
	"email.smtp.password":     {"JALAPRANA_EMAIL_SMTP_PASSWORD", func(c *Config) any { return &c.Email.SMTP.Password }},
	"email.smtp.auth_method":  {"JALAPRANA_EMAIL_SMTP_AUTH_METHOD", func(c *Config) any { return &c.Email.SMTP.AuthMethod }},
	"email.smtp.tls":          {"JALAPRANA_EMAIL_SMTP_TLS", func(c *Config) any { return &c.Email.SMTP.TLS }},
	"email.webhook.url":       {"JALAPRANA_EMAIL_WEBHOOK_URL", func(c *Config) any { return &c.Email.Webhook.URL }},
	"email.webhook.secret":    {"JALAPRANA_EMAIL_WEBHOOK_SECRET", func(c *Config) any { return &c.Email.Webhook.Secret }},
	"email.webhook.timeout":   {"JALAPRANA_EMAIL_WEBHOOK_TIMEOUT", func(c *Config) any { return &c.Email.Webhook.Timeout }},

	"logging.level":  {"JALAPRANA_LOG_LEVEL", func(c *Config) any { return &c.Logging.Level }},
	"logging.format": {"JALAPRANA_LOG_FORMAT", func(c *Config) any { return &c.Logging.Format }},
}

// IsValidKey reports whether key names a config setting.
func IsValidKey(key string) bool {
	_, ok := settings[key]
	return ok
}

// GetValue returns the value of a dotted key such as "server.port". Lists
// are joined with commas.
func GetValue(cfg *Config, key string) (any, error) {
	s, ok := settings[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
	switch p := s.field(cfg).(type) {
	case *string:
		return *p, nil
	case *int:
		return *p, nil
	case *bool:
		return *p, nil
	case *[]string:
		return strings.Join(*p, ","), nil
	}
	return nil, fmt.Errorf("unsupported type for %s", key)
}

// coerceValue converts a command-line string into the TOML type of key.
// A number that does not parse stays a string so validation reports it.
func coerceValue(key, value string) any {
	s, ok := settings[key]
	if !ok {
		return value
	}
	switch s.field(Default()).(type) {
	case *bool:
		return parseBool(value)
	case *int:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case *[]string:
		return splitList(value)
	}
	return value
}

// applyEnv overrides cfg from the JALAPRANA_* variables that are set. An
// integer variable that does not parse is an error and leaves its field
// untouched.
func applyEnv(cfg *Config) error {
	for _, s := range settings {
		if s.env == "" {
			continue
		}
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch p := s.field(cfg).(type) {
		case *string:
			*p = v
		case *bool:
			*p = parseBool(v)
		case *[]string:
			*p = splitList(v)
		case *int:
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %q is not an integer", s.env, v)
			}
			*p = n
		}
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for s := range strings.SplitSeq(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
