package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/testutil"
)

const testAdminURL = "http://jalaprana.test"

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// stubAdminHandler routes cliHTTPClient to handler for the rest of the test.
func stubAdminHandler(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	prevClient := cliHTTPClient
	cliHTTPClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler(rec, req)
			return rec.Result(), nil
		}),
	}
	t.Cleanup(func() {
		cliHTTPClient = prevClient
	})
}

// resetFlags puts every flag the tests touch back to its default. Cobra
// keeps flag values on the command tree between Execute calls.
func resetFlags() {
	_ = rootCmd.PersistentFlags().Set("json", "false")
	_ = rootCmd.PersistentFlags().Set("output", "table")

	_ = phoneCmd.PersistentFlags().Set("country", "")
	_ = phoneCmd.PersistentFlags().Set("config", "")
	_ = configCmd.PersistentFlags().Set("config", "")
	_ = configInitCmd.Flags().Set("force", "false")

	for _, cmd := range []*cobra.Command{emailTemplatesCmd, logsCmd, statsCmd} {
		_ = cmd.PersistentFlags().Set("url", "")
		_ = cmd.PersistentFlags().Set("admin-token", "")
	}
	_ = logsCmd.Flags().Set("lines", "100")
	_ = logsCmd.Flags().Set("level", "")

	_ = emailTemplatesSetCmd.Flags().Set("subject", "")
	_ = emailTemplatesSetCmd.Flags().Set("html-file", "")
	_ = emailTemplatesPreviewCmd.Flags().Set("vars", "{}")
	_ = emailTemplatesPreviewCmd.Flags().Set("subject", "")
	_ = emailTemplatesPreviewCmd.Flags().Set("html-file", "")
	_ = emailTemplatesSendCmd.Flags().Set("to", "")
	_ = emailTemplatesSendCmd.Flags().Set("vars", "{}")
}

// runCLI executes the root command with args, feeding stdin, and returns
// what the command wrote to its stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })
	testutil.Equal(t, "1.2.3", buildVersion)
	testutil.Equal(t, "abc123", buildCommit)
	testutil.Equal(t, "2026-01-01", buildDate)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "jalaprana dev")
	testutil.Contains(t, out, "commit: none")
}

func TestVersionCommandJSON(t *testing.T) {
	out, _, err := runCLI(t, "", "version", "--json")
	testutil.NoError(t, err)

	var v map[string]string
	testutil.NoError(t, json.Unmarshal([]byte(out), &v))
	testutil.Equal(t, "dev", v["version"])
	testutil.Equal(t, "none", v["commit"])
	testutil.Equal(t, "unknown", v["date"])
}

func TestBannerVersion(t *testing.T) {
	cases := map[string]string{
		"v0.3.0":             "0.3.0",
		"0.3.0":              "0.3.0",
		"v0.3.0-12-gabc1234": "0.3.0-dev",
		"0.3.0-rc.1":         "0.3.0-rc.1",
		"dev":                "dev",
	}
	for in, want := range cases {
		testutil.Equal(t, want, bannerVersion(in))
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "phone", "config", "logs", "stats", "email-templates", "version"} {
		testutil.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestServeAliasStart(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"start"})
	testutil.NoError(t, err)
	testutil.Equal(t, "serve", cmd.Name())
}

func TestStyledHelpGroupsCommands(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	styledHelp(rootCmd, nil)
	out := buf.String()
	testutil.Contains(t, out, "Jalaprana")
	testutil.Contains(t, out, "USAGE")
	testutil.Contains(t, out, "PHONE NUMBERS")
	testutil.Contains(t, out, "ADMIN")
	testutil.Contains(t, out, "email-templates")
	testutil.Contains(t, out, "--json")
}

func TestOutputFormat(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	testutil.Equal(t, "table", outputFormat(versionCmd))

	_ = rootCmd.PersistentFlags().Set("output", "csv")
	testutil.Equal(t, "csv", outputFormat(versionCmd))

	_ = rootCmd.PersistentFlags().Set("json", "true")
	testutil.Equal(t, "json", outputFormat(versionCmd))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	testutil.NoError(t, writeCSV(&buf, []string{"code", "name"}, [][]string{{"FR", "France"}, {"GB", "United Kingdom, GB"}}))
	testutil.Equal(t, "code,name\nFR,France\nGB,\"United Kingdom, GB\"\n", buf.String())
}

func TestConfigCommandProducesValidTOML(t *testing.T) {
	out, _, err := runCLI(t, "", "config", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	testutil.NoError(t, err)

	var parsed map[string]any
	testutil.NoError(t, toml.Unmarshal([]byte(out), &parsed))
	_, ok := parsed["server"]
	testutil.True(t, ok, "expected [server] section")
	_, ok = parsed["contact"]
	testutil.True(t, ok, "expected [contact] section")
}

func TestConfigCommandJSON(t *testing.T) {
	out, _, err := runCLI(t, "", "config", "--json", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	testutil.NoError(t, err)

	var parsed map[string]any
	testutil.NoError(t, json.Unmarshal([]byte(out), &parsed))
	testutil.True(t, len(parsed) > 0, "expected a non-empty config object")
}

func TestConfigInitSetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jalaprana.toml")

	out, _, err := runCLI(t, "", "config", "init", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "Wrote "+path)
	_, err = os.Stat(path)
	testutil.NoError(t, err)

	_, _, err = runCLI(t, "", "config", "init", "--config", path)
	testutil.ErrorContains(t, err, "already exists")

	_, _, err = runCLI(t, "", "config", "init", "--config", path, "--force")
	testutil.NoError(t, err)

	out, _, err = runCLI(t, "", "config", "set", "contact.default_country", "CH", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "contact.default_country = CH")

	out, _, err = runCLI(t, "", "config", "get", "contact.default_country", "--config", path)
	testutil.NoError(t, err)
	testutil.Equal(t, "CH\n", out)
}

func TestConfigSetWarnsOnInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jalaprana.toml")
	_, stderr, err := runCLI(t, "", "config", "set", "contact.default_country", "DE", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, stderr, "Note:")
	testutil.Contains(t, stderr, "default_country")
}

func TestConfigSetUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jalaprana.toml")
	_, _, err := runCLI(t, "", "config", "set", "nope.key", "1", "--config", path)
	testutil.ErrorContains(t, err, "unknown configuration key")
}

func TestServerErrorMessages(t *testing.T) {
	err := serverError(http.StatusUnauthorized, nil)
	testutil.ErrorContains(t, err, "authentication required")

	err = serverError(http.StatusNotFound, []byte("404 page not found"))
	testutil.ErrorContains(t, err, "admin API not available")

	err = serverError(http.StatusNotFound, []byte(`{"code":404,"message":"template not found"}`))
	testutil.ErrorContains(t, err, "template not found")

	err = serverError(http.StatusInternalServerError, []byte("boom"))
	testutil.ErrorContains(t, err, "server error (500): boom")
}

func TestAdminRequestSendsBearerToken(t *testing.T) {
	var auth string
	stubAdminHandler(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"uptime_seconds": 1})
	})

	_, _, err := runCLI(t, "", "stats", "--url", testAdminURL+"/", "--admin-token", "secret-token-123456")
	testutil.NoError(t, err)
	testutil.Equal(t, "Bearer secret-token-123456", auth)
}

func TestAdminTokenFromEnv(t *testing.T) {
	var auth string
	stubAdminHandler(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	t.Setenv("JALAPRANA_ADMIN_TOKEN", "env-token-abcdefgh")

	_, _, err := runCLI(t, "", "stats", "--url", testAdminURL)
	testutil.NoError(t, err)
	testutil.Equal(t, "Bearer env-token-abcdefgh", auth)
}

func TestAdminURLFromEnv(t *testing.T) {
	var host string
	stubAdminHandler(t, func(w http.ResponseWriter, r *http.Request) {
		host = r.URL.Host
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	t.Setenv("JALAPRANA_URL", "http://studio.jalaprana.test:9090")

	_, _, err := runCLI(t, "", "stats", "--admin-token", "tok")
	testutil.NoError(t, err)
	testutil.Equal(t, "studio.jalaprana.test:9090", host)
}
