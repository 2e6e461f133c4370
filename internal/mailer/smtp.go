package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"

	pbmailer "github.com/pocketbase/pocketbase/tools/mailer"
)

// SMTP delivers through a PocketBase mail client, normally
// *pbmailer.SMTPClient.
type SMTP struct {
	client pbmailer.Mailer
	from   Sender
}

func NewSMTP(client pbmailer.Mailer, from Sender) *SMTP {
	return &SMTP{client: client, from: from}
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

func NewSMTPClient(c SMTPConfig) *pbmailer.SMTPClient {
	return &pbmailer.SMTPClient{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		TLS:      c.TLS,
	}
}

func (s *SMTP) Send(ctx context.Context, m *Message) error {
	if err := validate(m); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &pbmailer.Message{
		From:    s.from.address(),
		To:      []mail.Address{m.To},
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
	}
	if len(m.Attachments) > 0 {
		msg.Attachments = make(map[string]io.Reader, len(m.Attachments))
		for _, a := range m.Attachments {
			msg.Attachments[a.Name] = bytes.NewReader(a.Data)
		}
	}

	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("mailer: smtp send: %w", err)
	}
	return nil
}
