package cli

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jalaprana/site/internal/config"
)

// cliHTTPClient is shared by the commands that talk to a running server.
var cliHTTPClient = &http.Client{Timeout: 30 * time.Second}

// addServerFlags registers the flags used to reach a running server.
func addServerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("admin-token", "", "Admin token (or set JALAPRANA_ADMIN_TOKEN)")
	cmd.PersistentFlags().String("url", "", "Server URL (or set JALAPRANA_URL; default from jalaprana.toml)")
}

// adminClient talks to the /api/admin routes of a running server.
type adminClient struct {
	baseURL string
	token   string
}

// newAdminClient resolves the server from --url, JALAPRANA_URL, then the
// port in jalaprana.toml, and the token from --admin-token,
// JALAPRANA_ADMIN_TOKEN, then admin.token.
func newAdminClient(cmd *cobra.Command) *adminClient {
	flagURL, _ := cmd.Flags().GetString("url")
	flagToken, _ := cmd.Flags().GetString("admin-token")

	c := &adminClient{
		baseURL: cmp.Or(flagURL, os.Getenv("JALAPRANA_URL")),
		token:   cmp.Or(flagToken, os.Getenv("JALAPRANA_ADMIN_TOKEN")),
	}
	if c.baseURL != "" && c.token != "" {
		return c
	}

	cfg, err := config.Load("", nil)
	if err != nil {
		cfg = config.Default()
	}
	if c.baseURL == "" {
		c.baseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	if c.token == "" {
		c.token = cfg.Admin.Token
	}
	return c
}

// do sends payload, if any, as JSON and returns the response body when the
// status is want. Any other status becomes an error carrying the server's
// message.
func (c *adminClient) do(ctx context.Context, method, path string, payload any, want int) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("serializing payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := cliHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, serverError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// adminCall is newAdminClient(cmd).do bound to the command's context.
func adminCall(cmd *cobra.Command, method, path string, payload any, want int) ([]byte, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return newAdminClient(cmd).do(ctx, method, path, payload, want)
}

// serverError extracts the message from an API error response.
func serverError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication required (401)\n\n" +
			"  Pass the server's admin.token with --admin-token or set\n" +
			"  JALAPRANA_ADMIN_TOKEN.")
	case http.StatusNotFound:
		if !strings.Contains(string(body), `"message"`) {
			return fmt.Errorf("admin API not available (404): is admin.token set on the server?")
		}
	}
	var errResp struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return fmt.Errorf("server error (%d): %s", status, errResp.Message)
	}
	return fmt.Errorf("server error (%d): %s", status, strings.TrimSpace(string(body)))
}
