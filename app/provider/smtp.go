package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-mailer/app/preparer"
	"gopkg.in/gomail.v2"
)

// Dialer opens an SMTP session. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

type SMTPProvider struct {
	dialer   Dialer
	source   string
	preparer preparer.EmailPreparer
}

// NewSMTPProvider builds a provider that delivers over SMTP.
func NewSMTPProvider(host string, port int, username string, password string, source string, prep preparer.EmailPreparer) *SMTPProvider {
	return NewSMTPProviderWithDialer(gomail.NewDialer(host, port, username, password), source, prep)
}

func NewSMTPProviderWithDialer(dialer Dialer, source string, prep preparer.EmailPreparer) *SMTPProvider {
	return &SMTPProvider{dialer: dialer, source: source, preparer: prep}
}

// Send opens one SMTP session per message.
func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}

	raw, err := p.preparer.Prepare(ctx, preparer.Message{
		Recipient: msg.To,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
	})
	if err != nil {
		return fmt.Errorf("prepare email content: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := p.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer sender.Close()

	if err := sender.Send(p.source, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
