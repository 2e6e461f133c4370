package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	pbmailer "github.com/pocketbase/pocketbase/tools/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"theater-site/models"
)

var from = Sender{Address: "ingressos@teatro.example", Name: "Teatro"}

func testMessage() *Message {
	return &Message{
		To:      mail.Address{Name: "Maria", Address: "maria@example.com"},
		Subject: "Seus ingressos",
		HTML:    "<p>oi</p>",
		Text:    "oi",
		Attachments: []Attachment{
			{Name: "ingressos.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3 fake")},
		},
	}
}

type fakePBMailer struct {
	sent []*pbmailer.Message
	body []byte
	err  error
}

func (f *fakePBMailer) Send(m *pbmailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	if r, ok := m.Attachments["ingressos.pdf"]; ok {
		f.body, _ = io.ReadAll(r)
	}
	return nil
}

func TestSMTP_Send(t *testing.T) {
	fake := &fakePBMailer{}
	m := NewSMTP(fake, from)

	require.NoError(t, m.Send(t.Context(), testMessage()))
	require.Len(t, fake.sent, 1)

	sent := fake.sent[0]
	assert.Equal(t, "ingressos@teatro.example", sent.From.Address)
	assert.Equal(t, "maria@example.com", sent.To[0].Address)
	assert.Equal(t, "Seus ingressos", sent.Subject)
	assert.Equal(t, []byte("%PDF-1.3 fake"), fake.body)
}

func TestSMTP_SendError(t *testing.T) {
	fake := &fakePBMailer{err: errors.New("connection refused")}

	err := NewSMTP(fake, from).Send(t.Context(), testMessage())
	assert.ErrorContains(t, err, "connection refused")
}

func TestSend_InvalidRecipient(t *testing.T) {
	tests := []struct {
		name string
		to   string
	}{
		{"Empty", ""},
		{"Malformed", "not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testMessage()
			msg.To.Address = tt.to

			assert.Error(t, NewSMTP(&fakePBMailer{}, from).Send(t.Context(), msg))
			assert.Error(t, NewLog(nil).Send(t.Context(), msg))
		})
	}
}

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendRawEmailWithContext(ctx aws.Context, input *ses.SendRawEmailInput, opts ...request.Option) (*ses.SendRawEmailOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*ses.SendRawEmailOutput)
	return out, args.Error(1)
}

func TestSES_Send(t *testing.T) {
	svc := new(mockSES)
	var raw []byte
	svc.On("SendRawEmailWithContext", mock.Anything, mock.MatchedBy(func(in *ses.SendRawEmailInput) bool {
		raw = in.RawMessage.Data
		return aws.StringValue(in.Source) == from.Address &&
			aws.StringValue(in.Destinations[0]) == "maria@example.com"
	})).Return(&ses.SendRawEmailOutput{MessageId: aws.String("id-1")}, nil)

	s := &SES{svc: svc, from: from}
	require.NoError(t, s.Send(t.Context(), testMessage()))
	svc.AssertExpectations(t)

	mime := string(raw)
	assert.Contains(t, mime, "Seus ingressos")
	assert.Contains(t, mime, "maria@example.com")
	assert.Contains(t, mime, "ingressos.pdf")
	assert.Contains(t, mime, "application/pdf")
}

func TestSES_SendError(t *testing.T) {
	svc := new(mockSES)
	svc.On("SendRawEmailWithContext", mock.Anything, mock.Anything).
		Return(nil, awserr.New(ses.ErrCodeMessageRejected, "Email address is not verified", nil))

	err := (&SES{svc: svc, from: from}).Send(t.Context(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ses.ErrCodeMessageRejected)
}

func TestLog_Send(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, NewLog(logger).Send(context.Background(), testMessage()))

	out := buf.String()
	assert.Contains(t, out, "maria@example.com")
	assert.Contains(t, out, "ingressos.pdf")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    any
		wantErr bool
	}{
		{"Default is log", Config{}, &Log{}, false},
		{"Log", Config{Driver: DriverLog}, &Log{}, false},
		{"SMTP", Config{Driver: DriverSMTP, SMTP: SMTPConfig{Host: "smtp.example", Port: 587}}, &SMTP{}, false},
		{"SMTP without host", Config{Driver: DriverSMTP}, nil, true},
		{"SES without region", Config{Driver: DriverSES}, nil, true},
		{"Unknown", Config{Driver: "pigeon"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}
}

func TestTicketMessage(t *testing.T) {
	customer := models.Customer{Name: "Maria O'Neil", Email: "maria@example.com"}
	event := models.Event{ID: "hamlet", Title: "Hamlet", Date: "20/11/2025", Location: "Teatro Municipal"}

	msg, err := TicketMessage(customer, event, 3, []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, "maria@example.com", msg.To.Address)
	assert.Equal(t, "Seus ingressos - Hamlet", msg.Subject)
	assert.Contains(t, msg.HTML, "Teatro Municipal")
	assert.Contains(t, msg.HTML, "3 ingresso(s)")
	assert.True(t, strings.HasPrefix(msg.Text, "Olá Maria O'Neil,"))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "ingressos-HAMLET.pdf", msg.Attachments[0].Name)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
}
