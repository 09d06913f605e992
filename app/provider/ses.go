package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/vibast-solutions/ms-go-mailer/app/preparer"
)

type SESProvider struct {
	client   *sesv2.Client
	source   string
	preparer preparer.EmailPreparer
}

// NewSESProvider builds a provider that sends email via AWS SES.
func NewSESProvider(cfg aws.Config, source string, prep preparer.EmailPreparer, optFns ...func(*sesv2.Options)) *SESProvider {
	return &SESProvider{
		client:   sesv2.NewFromConfig(cfg, optFns...),
		source:   source,
		preparer: prep,
	}
}

// Send renders msg as raw MIME and sends it via SES.
func (p *SESProvider) Send(ctx context.Context, msg Message) error {
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

	_, err = p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.source),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send raw email: %w", err)
	}

	return nil
}
