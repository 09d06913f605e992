package provider

import (
	"context"

	"github.com/sirupsen/logrus"
)

// NoopProvider is a stubbed provider that pretends to send emails.
type NoopProvider struct {
	log logrus.FieldLogger
}

// NewNoopProvider constructs a no-op email provider.
func NewNoopProvider(log logrus.FieldLogger) *NoopProvider {
	return &NoopProvider{log: log}
}

// Send logs the message and returns nil without sending.
func (p *NoopProvider) Send(_ context.Context, msg Message) error {
	p.log.WithFields(logrus.Fields{
		"recipient": msg.To,
		"subject":   msg.Subject,
	}).Info("noop provider: email not sent")
	return nil
}
