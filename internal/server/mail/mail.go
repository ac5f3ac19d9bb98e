// Package mail renders and delivers the two messages the server sends:
// credential-change codes and subscription renewal reminders.
package mail

import "context"

// Message is a single outbound email. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message. Implementations report failure but give no
// delivery guarantee beyond that.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
