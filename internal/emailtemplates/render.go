package emailtemplates

import (
	"context"
	"fmt"
	"html"
	htmltemplate "html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"
)

// renderTimeout bounds a single render, store lookup included.
const renderTimeout = 5 * time.Second

// compiled is a parsed subject/body pair for one key.
type compiled struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// compile parses both sources with missingkey=error so an unknown variable
// fails instead of rendering "<no value>". The body gets an empty FuncMap:
// overrides can only use the html/template builtins.
func compile(key, subjectTpl, htmlTpl string) (*compiled, error) {
	subject, err := texttemplate.New(key + ".subject").Option("missingkey=error").Parse(subjectTpl)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrParseFailed, err)
	}
	body, err := htmltemplate.New(key + ".html").
		Option("missingkey=error").
		Funcs(htmltemplate.FuncMap{}).
		Parse(htmlTpl)
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrParseFailed, err)
	}
	return &compiled{subject: subject, body: body}, nil
}

func (c *compiled) execute(ctx context.Context, vars map[string]string) (*RenderedEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	var subject, body strings.Builder
	if err := c.subject.Execute(&subject, vars); err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrRenderFailed, err)
	}
	if err := c.body.Execute(&body, vars); err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrRenderFailed, err)
	}
	return &RenderedEmail{
		Subject: subject.String(),
		HTML:    body.String(),
		Text:    stripHTML(body.String()),
	}, nil
}

// renderTemplates compiles and executes one subject/body pair.
func renderTemplates(ctx context.Context, key, subjectTpl, htmlTpl string, vars map[string]string) (*RenderedEmail, error) {
	c, err := compile(key, subjectTpl, htmlTpl)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, vars)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML turns a rendered body into the plain-text alternative: tags are
// dropped, entities decoded, and each line trimmed with blank lines removed.
func stripHTML(s string) string {
	text := html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
	lines := make([]string, 0, 8)
	for line := range strings.Lines(text) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
