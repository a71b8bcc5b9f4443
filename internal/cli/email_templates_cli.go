package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const emailTemplatesPath = "/api/admin/email-templates"

var emailTemplatesCmd = &cobra.Command{
	Use:   "email-templates",
	Short: "Manage the contact email templates of a running server",
	Long: `Inspect and override the contact notification and confirmation emails.
Overrides are stored in the server's email.templates_dir.

Template keys:
  contact.notification    sent to the practitioner
  contact.confirmation    sent to the visitor`,
}

var emailTemplatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List email templates",
	Args:  cobra.NoArgs,
	RunE:  runEmailTemplatesList,
}

var emailTemplatesGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the effective template for a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmailTemplatesGet,
}

var emailTemplatesSetCmd = &cobra.Command{
	Use:     "set <key>",
	Short:   "Create or update a template override",
	Example: `jalaprana email-templates set contact.confirmation --html-file confirmation.html --subject "Namaste {{.Name}}"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEmailTemplatesSet,
}

var emailTemplatesDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a template override",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmailTemplatesDelete,
}

var emailTemplatesPreviewCmd = &cobra.Command{
	Use:     "preview <key>",
	Short:   "Render a template with variables",
	Example: `jalaprana email-templates preview contact.confirmation --vars '{"Name":"Asha"}'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEmailTemplatesPreview,
}

var emailTemplatesEnableCmd = &cobra.Command{
	Use:   "enable <key>",
	Short: "Enable a template override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTemplateEnabled(cmd, args[0], true)
	},
}

var emailTemplatesDisableCmd = &cobra.Command{
	Use:   "disable <key>",
	Short: "Disable a template override and fall back to the built-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTemplateEnabled(cmd, args[0], false)
	},
}

var emailTemplatesSendCmd = &cobra.Command{
	Use:   "send <key>",
	Short: "Send a test email using a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmailTemplatesSend,
}

func init() {
	addServerFlags(emailTemplatesCmd)

	emailTemplatesSetCmd.Flags().String("subject", "", "Subject template (empty keeps the built-in subject)")
	emailTemplatesSetCmd.Flags().String("html-file", "", "Path to HTML template file (required)")

	emailTemplatesPreviewCmd.Flags().String("vars", "{}", "JSON variables object")
	emailTemplatesPreviewCmd.Flags().String("subject", "", "Subject template to preview instead of the effective one")
	emailTemplatesPreviewCmd.Flags().String("html-file", "", "HTML template file to preview instead of the effective one")

	emailTemplatesSendCmd.Flags().String("to", "", "Recipient email address (required)")
	emailTemplatesSendCmd.Flags().String("vars", "{}", "JSON variables object")

	emailTemplatesCmd.AddCommand(
		emailTemplatesListCmd,
		emailTemplatesGetCmd,
		emailTemplatesSetCmd,
		emailTemplatesDeleteCmd,
		emailTemplatesPreviewCmd,
		emailTemplatesEnableCmd,
		emailTemplatesDisableCmd,
		emailTemplatesSendCmd,
	)
}

func templatePath(key string) string {
	return emailTemplatesPath + "/" + url.PathEscape(key)
}

// effectiveTemplate mirrors the server's view of a key.
type effectiveTemplate struct {
	Source          string   `json:"source"`
	TemplateKey     string   `json:"templateKey"`
	SubjectTemplate string   `json:"subjectTemplate"`
	HTMLTemplate    string   `json:"htmlTemplate"`
	Enabled         bool     `json:"enabled"`
	Variables       []string `json:"variables"`
}

func fetchEffective(cmd *cobra.Command, key string) ([]byte, *effectiveTemplate, error) {
	body, err := adminCall(cmd, http.MethodGet, templatePath(key), nil, http.StatusOK)
	if err != nil {
		return nil, nil, err
	}
	var eff effectiveTemplate
	if err := json.Unmarshal(body, &eff); err != nil {
		return nil, nil, fmt.Errorf("parsing response: %w", err)
	}
	return body, &eff, nil
}

// writeRaw passes a JSON response body through to the command output.
func writeRaw(cmd *cobra.Command, body []byte) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", bytes.TrimSpace(body))
	return err
}

// readHTMLFlag reads the file named by --html-file, or returns "" when the
// flag is unset.
func readHTMLFlag(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("html-file")
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading --html-file %q: %w", path, err)
	}
	return string(raw), nil
}

func runEmailTemplatesList(cmd *cobra.Command, _ []string) error {
	body, err := adminCall(cmd, http.MethodGet, emailTemplatesPath, nil, http.StatusOK)
	if err != nil {
		return err
	}

	var result struct {
		Items []struct {
			TemplateKey     string `json:"templateKey"`
			Source          string `json:"source"`
			SubjectTemplate string `json:"subjectTemplate"`
			Enabled         bool   `json:"enabled"`
			UpdatedAt       string `json:"updatedAt,omitempty"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return writeJSON(out, result.Items)
	}
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "No email templates found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSOURCE\tENABLED\tUPDATED\tSUBJECT")
	for _, it := range result.Items {
		updated := it.UpdatedAt
		if updated == "" {
			updated = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", it.TemplateKey, it.Source, it.Enabled, updated, it.SubjectTemplate)
	}
	return w.Flush()
}

func runEmailTemplatesGet(cmd *cobra.Command, args []string) error {
	body, eff, err := fetchEffective(cmd, args[0])
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return writeRaw(cmd, body)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key: %s\nSource: %s\nEnabled: %t\nSubject: %s\n",
		eff.TemplateKey, eff.Source, eff.Enabled, eff.SubjectTemplate)
	if len(eff.Variables) > 0 {
		fmt.Fprintf(out, "Variables: %s\n", strings.Join(eff.Variables, ", "))
	}
	fmt.Fprintf(out, "HTML:\n%s\n", eff.HTMLTemplate)
	return nil
}

func runEmailTemplatesSet(cmd *cobra.Command, args []string) error {
	htmlTpl, err := readHTMLFlag(cmd)
	if err != nil {
		return err
	}
	if htmlTpl == "" {
		return fmt.Errorf("--html-file is required")
	}
	subject, _ := cmd.Flags().GetString("subject")

	body, err := adminCall(cmd, http.MethodPut, templatePath(args[0]), map[string]string{
		"subjectTemplate": subject,
		"htmlTemplate":    htmlTpl,
	}, http.StatusOK)
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return writeRaw(cmd, body)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Email template %q updated.\n", args[0])
	return nil
}

func runEmailTemplatesDelete(cmd *cobra.Command, args []string) error {
	if _, err := adminCall(cmd, http.MethodDelete, templatePath(args[0]), nil, http.StatusNoContent); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Email template %q deleted.\n", args[0])
	return nil
}

func runEmailTemplatesPreview(cmd *cobra.Command, args []string) error {
	key := args[0]
	varsRaw, _ := cmd.Flags().GetString("vars")
	vars, err := parseStringVars("--vars", varsRaw)
	if err != nil {
		return err
	}
	subject, _ := cmd.Flags().GetString("subject")
	htmlTpl, err := readHTMLFlag(cmd)
	if err != nil {
		return err
	}

	// Whatever was not given comes from the effective template.
	if subject == "" || htmlTpl == "" {
		_, eff, err := fetchEffective(cmd, key)
		if err != nil {
			return err
		}
		if subject == "" {
			subject = eff.SubjectTemplate
		}
		if htmlTpl == "" {
			htmlTpl = eff.HTMLTemplate
		}
	}

	body, err := adminCall(cmd, http.MethodPost, templatePath(key)+"/preview", map[string]any{
		"subjectTemplate": subject,
		"htmlTemplate":    htmlTpl,
		"variables":       vars,
	}, http.StatusOK)
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return writeRaw(cmd, body)
	}

	var preview struct {
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(body, &preview); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\nHTML:\n%s\n\nText:\n%s\n", preview.Subject, preview.HTML, preview.Text)
	return nil
}

func setTemplateEnabled(cmd *cobra.Command, key string, enabled bool) error {
	body, err := adminCall(cmd, http.MethodPatch, templatePath(key), map[string]bool{"enabled": enabled}, http.StatusOK)
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return writeRaw(cmd, body)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Email template %q %s.\n", key, state)
	return nil
}

func runEmailTemplatesSend(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	if to == "" {
		return fmt.Errorf("--to is required")
	}
	varsRaw, _ := cmd.Flags().GetString("vars")
	vars, err := parseStringVars("--vars", varsRaw)
	if err != nil {
		return err
	}

	body, err := adminCall(cmd, http.MethodPost, emailTemplatesPath+"/send", map[string]any{
		"templateKey": args[0],
		"to":          to,
		"variables":   vars,
	}, http.StatusOK)
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return writeRaw(cmd, body)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Email sent using template %q to %s.\n", args[0], to)
	return nil
}

// parseStringVars decodes a JSON object of string variables; an empty or
// null value yields an empty map.
func parseStringVars(flagName, raw string) (map[string]string, error) {
	vars := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return vars, nil
	}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("invalid %s JSON: %w", flagName, err)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	return vars, nil
}
