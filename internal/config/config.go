package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/jalaprana/site/internal/phone"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "jalaprana.toml"

// Config is the top-level site configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Access  AccessConfig  `toml:"access"`
	Admin   AdminConfig   `toml:"admin"`
	Contact ContactConfig `toml:"contact"`
	Email   EmailConfig   `toml:"email"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	SiteURL            string   `toml:"site_url"` // public base URL used in email links
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ShutdownTimeout    int      `toml:"shutdown_timeout"`
}

// AccessConfig restricts the whole site to a list of client IPs, e.g. while
// it is still in preview. An empty list disables the check.
type AccessConfig struct {
	AllowedIPs []string `toml:"allowed_ips"`
	AllowLocal bool     `toml:"allow_local"` // direct connections from a loopback address always pass
}

// AdminConfig enables the /api/admin routes (email templates, recent logs).
// They stay unmounted while Token is empty.
type AdminConfig struct {
	Token         string `toml:"token"`
	LogBufferSize int    `toml:"log_buffer_size"`
}

// ContactConfig controls the contact form endpoint.
type ContactConfig struct {
	Recipient      string `toml:"recipient"`       // practitioner inbox receiving submissions
	DefaultCountry string `toml:"default_country"` // phone country when the form sends none
	RateLimit      int    `toml:"rate_limit"`      // submissions per minute per IP
	TestMode       bool   `toml:"test_mode"`       // prefix subjects with [TEST] and flag headers
}

// EmailConfig controls how transactional emails are sent.
// When Backend is "" or "log", emails are printed to the log (dev mode).
type EmailConfig struct {
	Backend      string             `toml:"backend"` // "log" (default), "smtp", "webhook"
	From         string             `toml:"from"`
	FromName     string             `toml:"from_name"`
	TemplatesDir string             `toml:"templates_dir"` // optional overrides for built-in templates
	SMTP         EmailSMTPConfig    `toml:"smtp"`
	Webhook      EmailWebhookConfig `toml:"webhook"`
}

type EmailSMTPConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	AuthMethod string `toml:"auth_method"` // PLAIN, LOGIN, CRAM-MD5
	TLS        bool   `toml:"tls"`
}

type EmailWebhookConfig struct {
	URL     string `toml:"url"`
	Secret  string `toml:"secret"`
	Timeout int    `toml:"timeout"` // seconds, default 10
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSAllowedOrigins: []string{"*"},
			ShutdownTimeout:    10,
		},
		Access: AccessConfig{
			AllowLocal: true,
		},
		Admin: AdminConfig{
			LogBufferSize: 500,
		},
		Contact: ContactConfig{
			DefaultCountry: string(phone.FR),
			RateLimit:      5,
		},
		Email: EmailConfig{
			Backend:  "log",
			FromName: "Jalaprana",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with priority: defaults → jalaprana.toml → env vars → CLI flags.
// The flags parameter allows CLI flag overrides to be passed in.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = DefaultPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be non-negative, got %d", c.Server.ShutdownTimeout)
	}
	for _, ip := range c.Access.AllowedIPs {
		if net.ParseIP(strings.TrimSpace(ip)) == nil {
			return fmt.Errorf("access.allowed_ips contains invalid IP %q", ip)
		}
	}
	if c.Admin.Token != "" && len(c.Admin.Token) < 16 {
		return fmt.Errorf("admin.token must be at least 16 characters")
	}
	if c.Admin.LogBufferSize < 0 {
		return fmt.Errorf("admin.log_buffer_size must be non-negative, got %d", c.Admin.LogBufferSize)
	}
	if _, ok := phone.ParseCode(c.Contact.DefaultCountry); !ok {
		return fmt.Errorf("contact.default_country must be one of FR, CH, US, GB; got %q", c.Contact.DefaultCountry)
	}
	if c.Contact.RateLimit < 0 {
		return fmt.Errorf("contact.rate_limit must be non-negative, got %d", c.Contact.RateLimit)
	}
	switch c.Email.Backend {
	case "", "log":
	case "smtp":
		if c.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp.host is required when email backend is \"smtp\"")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email.from is required when email backend is \"smtp\"")
		}
		if c.Contact.Recipient == "" {
			return fmt.Errorf("contact.recipient is required when email backend is \"smtp\"")
		}
	case "webhook":
		if c.Email.Webhook.URL == "" {
			return fmt.Errorf("email.webhook.url is required when email backend is \"webhook\"")
		}
	default:
		return fmt.Errorf("email.backend must be \"log\", \"smtp\", or \"webhook\", got %q", c.Email.Backend)
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}
	return nil
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PublicBaseURL returns the public base URL used in email links. If
// server.site_url is configured, it is used as-is (with trailing slashes
// stripped); otherwise one is built from host:port with 0.0.0.0 replaced by
// localhost.
func (c *Config) PublicBaseURL() string {
	if c.Server.SiteURL != "" {
		return strings.TrimRight(c.Server.SiteURL, "/")
	}
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// DefaultCountry returns the configured default phone country code.
func (c *Config) DefaultCountry() phone.Code {
	code, _ := phone.ParseCode(c.Contact.DefaultCountry)
	return code
}

// GenerateDefault writes a commented default jalaprana.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// flagKeys maps the serve command's flags onto config keys.
var flagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"email-backend": "email.backend",
	"test-mode":     "contact.test_mode",
}

// applyFlags applies non-empty flag values. A port that does not parse is
// ignored.
func applyFlags(cfg *Config, flags map[string]string) {
	for name, v := range flags {
		key, ok := flagKeys[name]
		if !ok || v == "" {
			continue
		}
		switch p := settings[key].field(cfg).(type) {
		case *string:
			*p = v
		case *bool:
			*p = parseBool(v)
		case *int:
			if n, err := strconv.Atoi(v); err == nil {
				*p = n
			}
		}
	}
}

// SetValue updates a single dotted key in the TOML file at configPath,
// creating the file if needed. Other keys and sections are kept.
func SetValue(configPath, key, value string) error {
	path := strings.Split(key, ".")
	if len(path) < 2 || slices.Contains(path, "") {
		return fmt.Errorf("invalid key format: %s (expected section.field)", key)
	}

	doc := map[string]any{}
	if raw, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	table := doc
	for _, name := range path[:len(path)-1] {
		sub, ok := table[name].(map[string]any)
		if !ok {
			sub = map[string]any{}
			table[name] = sub
		}
		table = sub
	}
	table[path[len(path)-1]] = coerceValue(key, value)

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(configPath, out, 0o644)
}

const defaultTOML = `# Jalaprana site configuration

[server]
# Address to listen on.
host = "0.0.0.0"
port = 8080

# Public URL of the site, used in email links.
# site_url = "https://jalaprana.example"

# CORS allowed origins. Use ["*"] to allow all.
cors_allowed_origins = ["*"]

# Seconds to wait for in-flight requests during shutdown.
shutdown_timeout = 10

[access]
# Restrict the site to these client IPs (empty = open to everyone).
# allowed_ips = ["203.0.113.7"]

# Direct connections from a loopback address (not via a proxy) always pass.
allow_local = true

[admin]
# Bearer token for /api/admin (email templates, recent logs). Unset = disabled.
# token = ""

# Number of recent log lines kept for /api/admin/logs.
log_buffer_size = 500

[contact]
# Inbox receiving contact form submissions.
# recipient = "hello@jalaprana.example"

# Phone country used when the form does not send one: FR, CH, US or GB.
default_country = "FR"

# Contact form submissions allowed per minute per IP (0 disables the limit).
rate_limit = 5

# Prefix subjects with [TEST] and add an X-Test-Mode header.
test_mode = false

[email]
# Email backend: "log" (default, prints to the log), "smtp", or "webhook".
backend = "log"

# Sender address and display name.
# from = "contact@jalaprana.example"
from_name = "Jalaprana"

# Directory with template overrides (<key>.html and optional <key>.subject).
# templates_dir = "./emails"

# [email.smtp]
# host = ""
# port = 587
# username = ""
# password = ""
# auth_method = "PLAIN"
# tls = false

# Webhook settings (backend = "webhook").
# Signed with HMAC-SHA256 in the X-Jalaprana-Signature header if secret is set.
# [email.webhook]
# url = ""
# secret = ""
# timeout = 10

[logging]
# Log level: debug, info, warn, error.
level = "info"

# Log format: json or text.
format = "json"
`
