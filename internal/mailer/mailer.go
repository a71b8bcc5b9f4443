// Package mailer sends transactional email through a pluggable backend:
// the log (development), an SMTP server, or an HTTP webhook.
package mailer

import "context"

// Message is a single outbound email.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	// Headers are extra MIME headers, e.g. X-Test-Mode.
	Headers map[string]string
}

// Mailer delivers a Message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}
