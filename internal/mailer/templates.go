package mailer

import (
	"fmt"
	"net/mail"
	"strings"
	texttemplate "text/template"

	"github.com/pocketbase/pocketbase/tools/template"

	"theater-site/models"
)

var registry = template.NewRegistry()

// The registry escapes for HTML, so the plain-text part uses text/template.
var ticketText = texttemplate.Must(texttemplate.New("ticket").Parse(ticketEmailText))

const ticketEmailHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #222;">
  <h2>Seus ingressos para {{.Event.Title}}</h2>
  <p>Olá {{.Customer.Name}},</p>
  <p>Seu pagamento foi confirmado. Em anexo estão {{.Count}} ingresso(s) em PDF.</p>
  <table cellpadding="4">
    <tr><td><strong>Evento</strong></td><td>{{.Event.Title}}</td></tr>
    {{if .Event.Date}}<tr><td><strong>Data</strong></td><td>{{.Event.Date}}</td></tr>{{end}}
    {{if .Event.Location}}<tr><td><strong>Local</strong></td><td>{{.Event.Location}}</td></tr>{{end}}
  </table>
  <p>Apresente o QR code de cada ingresso na entrada. Cada código vale para uma única entrada.</p>
</body>
</html>`

const ticketEmailText = `Olá {{.Customer.Name}},

Seu pagamento foi confirmado. Em anexo estão {{.Count}} ingresso(s) para {{.Event.Title}}.
{{if .Event.Date}}Data: {{.Event.Date}}
{{end}}{{if .Event.Location}}Local: {{.Event.Location}}
{{end}}
Apresente o QR code de cada ingresso na entrada.
`

type ticketEmailData struct {
	Customer models.Customer
	Event    models.Event
	Count    int
}

// TicketMessage builds the email that carries the ticket PDF.
func TicketMessage(customer models.Customer, event models.Event, count int, pdf []byte) (*Message, error) {
	data := ticketEmailData{Customer: customer, Event: event, Count: count}

	html, err := registry.LoadString(ticketEmailHTML).Render(data)
	if err != nil {
		return nil, fmt.Errorf("mailer: render html: %w", err)
	}
	var text strings.Builder
	if err := ticketText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("mailer: render text: %w", err)
	}

	return &Message{
		To:      mail.Address{Name: customer.Name, Address: customer.Email},
		Subject: "Seus ingressos - " + event.Title,
		HTML:    html,
		Text:    text.String(),
		Attachments: []Attachment{{
			Name:        fmt.Sprintf("ingressos-%s.pdf", event.Code()),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}, nil
}
