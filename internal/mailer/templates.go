package mailer

import (
	"embed"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Default subjects, as text/template strings over the same variables as the
// HTML bodies.
const (
	DefaultContactNotificationSubject = "Nouveau message de {{.Name}}"
	DefaultContactConfirmationSubject = "{{.AppName}} - Confirmation de votre message"
)

// TemplateData is the set of variables the built-in templates use.
type TemplateData struct {
	AppName    string
	Name       string
	Email      string
	Phone      string
	Country    string
	Message    string
	ReceivedAt string
}

// Vars flattens d into the string map the template service renders with.
// PhoneTel and Year are derived.
func (d TemplateData) Vars() map[string]string {
	receivedAt := d.ReceivedAt
	if receivedAt == "" {
		receivedAt = FormatDateFR(time.Now())
	}
	return map[string]string{
		"AppName":    d.AppName,
		"Name":       d.Name,
		"Email":      d.Email,
		"Phone":      d.Phone,
		"PhoneTel":   strings.Join(strings.Fields(d.Phone), ""),
		"Country":    d.Country,
		"Message":    d.Message,
		"ReceivedAt": receivedAt,
		"Year":       strconv.Itoa(time.Now().Year()),
	}
}

// TemplateVariables lists the variable names available to the contact templates.
var TemplateVariables = []string{"AppName", "Name", "Email", "Phone", "PhoneTel", "Country", "Message", "ReceivedAt", "Year"}

// BuiltinHTMLTemplate returns the raw source of an embedded template.
func BuiltinHTMLTemplate(name string) (string, error) {
	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RenderContactNotification renders the email sent to the site owner for a
// contact form submission.
func RenderContactNotification(d TemplateData) (string, string, error) {
	return render("contact_notification.html", d)
}

// RenderContactConfirmation renders the acknowledgement sent to the visitor.
func RenderContactConfirmation(d TemplateData) (string, string, error) {
	return render("contact_confirmation.html", d)
}

func render(name string, d TemplateData) (string, string, error) {
	var buf strings.Builder
	if err := templates.ExecuteTemplate(&buf, name, d.Vars()); err != nil {
		return "", "", fmt.Errorf("rendering %s: %w", name, err)
	}
	out := buf.String()
	return out, stripHTML(out), nil
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FormatDateFR renders t the way the notification email shows it,
// e.g. "3 mars 2025 à 14:05".
func FormatDateFR(t time.Time) string {
	return fmt.Sprintf("%d %s %d à %02d:%02d", t.Day(), frenchMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// stripHTML removes tags, decodes entities and drops blank lines for the
// plaintext part.
func stripHTML(s string) string {
	var out strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			out.WriteByte('\n')
		case !inTag:
			out.WriteRune(r)
		}
	}
	lines := strings.Split(html.UnescapeString(out.String()), "\n")
	result := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return strings.Join(result, "\n")
}
