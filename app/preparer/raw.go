package preparer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type RawPreparer struct {
	source string
	now    func() time.Time
}

// NewRawPreparer creates a preparer that builds a raw MIME message.
func NewRawPreparer(source string) *RawPreparer {
	return &RawPreparer{source: source, now: time.Now}
}

// Prepare renders the message as MIME. When both bodies are set the result is
// multipart/alternative with the text part first.
func (p *RawPreparer) Prepare(_ context.Context, msg *Message) error {
	if strings.TrimSpace(p.source) == "" {
		return fmt.Errorf("source email is required")
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.ContainsAny(msg.Recipient, "\r\n") {
		return fmt.Errorf("recipient contains invalid characters")
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.source)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", p.now())

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("render mime message: %w", err)
	}

	msg.Raw = buf.Bytes()
	return nil
}
