package provider

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

type MailgunProvider struct {
	client *mailgun.MailgunImpl
	domain string
	apiKey string
	source string
}

// NewMailgunProvider builds a provider backed by the Mailgun HTTP API.
// apiBase may be empty to use the default US endpoint.
func NewMailgunProvider(domain string, apiKey string, apiBase string, source string) *MailgunProvider {
	client := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}
	return &MailgunProvider{client: client, domain: domain, apiKey: apiKey, source: source}
}

// Send posts msg to Mailgun.
func (p *MailgunProvider) Send(ctx context.Context, msg Message) error {
	if err := p.validate(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}

	message := p.client.NewMessage(p.source, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}

	if _, _, err := p.client.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

func (p *MailgunProvider) validate() error {
	if p.domain == "" {
		return fmt.Errorf("MAILGUN_DOMAIN is required")
	}
	if p.apiKey == "" {
		return fmt.Errorf("MAILGUN_API_KEY is required")
	}
	if p.source == "" {
		return fmt.Errorf("EMAIL_FROM is required")
	}
	return nil
}
