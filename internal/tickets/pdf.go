package tickets

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"theater-site/internal/status"
	"theater-site/models"
)

func typeLabel(t models.TicketType) string {
	if t == models.TicketMeia {
		return "Meia-entrada"
	}
	return "Inteira"
}

// RenderPDF lays out one A4 page per ticket with its QR code. baseURL is the
// site root the QR codes point at.
func RenderPDF(baseURL string, list []*models.Ticket) ([]byte, error) {
	if len(list) == 0 {
		return nil, status.ErrNoTickets
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Ingressos - "+list[0].Event.Title, true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, t := range list {
		png, err := QRPNG(QRPayload(baseURL, t.TicketID))
		if err != nil {
			return nil, err
		}

		pdf.AddPage()

		pdf.SetFont("Helvetica", "B", 22)
		pdf.CellFormat(0, 12, tr(t.Event.Title), "", 1, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", 13)
		pdf.CellFormat(0, 8, tr(t.Event.Date), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 8, tr(t.Event.Location), "", 1, "C", false, 0, "")
		pdf.Ln(6)

		name := "qr-" + t.TicketID
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
		pdf.ImageOptions(name, 55, pdf.GetY(), 100, 100, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.SetY(pdf.GetY() + 106)

		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, t.TicketNumber, "", 1, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s - ingresso %d de %d", typeLabel(t.Type), t.TicketIndex, t.TotalTickets)), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 7, tr(t.Customer.Name), "", 1, "C", false, 0, "")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr("Apresente este QR code na entrada. Cada ingresso vale para uma única entrada."), "", "C", false)
		pdf.CellFormat(0, 5, t.TicketID, "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("tickets: pdf.Output: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderReportPDF renders the sales report as a single table.
func RenderReportPDF(title string, generatedAt time.Time, rows []models.ReportRow) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	headers := []string{"Evento", "Data", "Local", "Nome", "Quantidade"}
	widths := []float64{70, 40, 60, 80, 27}

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, "Gerado em "+generatedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
		pdf.Ln(2)
		header()
	})
	pdf.AddPage()

	total := 0
	for _, r := range rows {
		cells := []string{r.Event, r.Date, r.Location, r.Name, strconv.Itoa(r.Quantity)}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 7, tr(c), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		total += r.Quantity
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, strconv.Itoa(total), "1", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("tickets: pdf.Output: %w", err)
	}
	return buf.Bytes(), nil
}
