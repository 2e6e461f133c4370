package mailer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/domodwyer/mailyak/v3"
)

// rawSender is the part of the SES API used here.
type rawSender interface {
	SendRawEmailWithContext(ctx aws.Context, input *ses.SendRawEmailInput, opts ...request.Option) (*ses.SendRawEmailOutput, error)
}

// SES sends MIME messages built by mailyak through SendRawEmail, which is
// the only SES call that carries attachments.
type SES struct {
	svc  rawSender
	from Sender
}

func NewSES(region string, from Sender) (*SES, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: session.NewSession: %w", err)
	}
	return &SES{svc: ses.New(sess), from: from}, nil
}

func (s *SES) Send(ctx context.Context, m *Message) error {
	if err := validate(m); err != nil {
		return err
	}

	raw, err := buildMIME(s.from, m)
	if err != nil {
		return err
	}

	_, err = s.svc.SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(s.from.Address),
		Destinations: []*string{aws.String(m.To.Address)},
		RawMessage:   &ses.RawMessage{Data: raw},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			return fmt.Errorf("mailer: ses %s: %w", aerr.Code(), err)
		}
		return fmt.Errorf("mailer: ses send: %w", err)
	}
	return nil
}

func buildMIME(from Sender, m *Message) ([]byte, error) {
	mail := mailyak.New("", nil)
	mail.From(from.Address)
	mail.FromName(from.Name)
	mail.To(m.To.Address)
	mail.Subject(m.Subject)
	if m.HTML != "" {
		mail.HTML().Set(m.HTML)
	}
	if m.Text != "" {
		mail.Plain().Set(m.Text)
	}
	for _, a := range m.Attachments {
		if a.ContentType != "" {
			mail.AttachWithMimeType(a.Name, bytes.NewReader(a.Data), a.ContentType)
		} else {
			mail.Attach(a.Name, bytes.NewReader(a.Data))
		}
	}

	buf, err := mail.MimeBuf()
	if err != nil {
		return nil, fmt.Errorf("mailer: mailyak.MimeBuf: %w", err)
	}
	return buf.Bytes(), nil
}
