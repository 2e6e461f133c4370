// Package mailer sends transactional email through SMTP, AWS SES or the
// application log.
package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

const (
	DriverSMTP = "smtp"
	DriverSES  = "ses"
	DriverLog  = "log"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Message struct {
	To          mail.Address
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, m *Message) error
}

// Sender is the From address shared by every driver.
type Sender struct {
	Address string
	Name    string
}

func (s Sender) address() mail.Address {
	return mail.Address{Name: s.Name, Address: s.Address}
}

func validate(m *Message) error {
	if m == nil {
		return fmt.Errorf("mailer: nil message")
	}
	if strings.TrimSpace(m.To.Address) == "" {
		return fmt.Errorf("mailer: message without recipient")
	}
	if _, err := mail.ParseAddress(m.To.Address); err != nil {
		return fmt.Errorf("mailer: invalid recipient %q: %w", m.To.Address, err)
	}
	return nil
}
