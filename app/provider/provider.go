package provider

import "context"

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type EmailProvider interface {
	Send(ctx context.Context, msg Message) error
}
