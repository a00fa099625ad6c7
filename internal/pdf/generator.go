package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

const fontName = "Helvetica"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Render lays out the contract with its parties, terms, milestones and a
// signature block reflecting the recorded signatures.
func (g *Generator) Render(doc model.ContractDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	contract := doc.Contract

	pdf.SetFont(fontName, "B", 16)
	pdf.CellFormat(0, 10, tr("SERVICE CONTRACT"), "", 1, "C", false, 0, "")
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 6, tr(contract.Title), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Contract %s, status %s", contract.ID, contract.Status), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	addPartyBlock(pdf, tr, "Client", doc.Client)
	pdf.Ln(2)
	addPartyBlock(pdf, tr, "Service provider", doc.Provider)
	pdf.Ln(4)

	section(pdf, "Term")
	period := fmt.Sprintf("From %s", formatDate(&contract.StartDate))
	if contract.EndDate != nil {
		period += fmt.Sprintf(" to %s", formatDate(contract.EndDate))
	}
	pdf.CellFormat(0, 6, period, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	section(pdf, "Compensation")
	switch contract.PaymentSchedule {
	case model.PaymentScheduleHourly:
		rate := decimal.Zero
		if contract.HourlyRate.Valid {
			rate = contract.HourlyRate.Decimal
		}
		pdf.CellFormat(0, 6, fmt.Sprintf("Hourly: %s %s per approved hour, up to %s %s",
			formatAmount(rate), contract.Currency, formatAmount(contract.TotalAmount), contract.Currency), "", 1, "L", false, 0, "")
	default:
		pdf.CellFormat(0, 6, fmt.Sprintf("Fixed price: %s %s", formatAmount(contract.TotalAmount), contract.Currency), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Completion: %d%%", doc.CompletionPercentage), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if strings.TrimSpace(contract.Description) != "" {
		section(pdf, "Scope of work")
		pdf.MultiCell(0, 5, tr(contract.Description), "", "L", false)
		pdf.Ln(2)
	}
	if strings.TrimSpace(contract.Terms) != "" {
		section(pdf, "Terms and conditions")
		pdf.MultiCell(0, 5, tr(contract.Terms), "", "L", false)
		pdf.Ln(2)
	}

	if len(contract.Milestones) > 0 {
		section(pdf, "Milestones")
		widths := []float64{90, 30, 30, 30}
		drawTableRow(pdf, []string{"Title", "Due", "Amount", "Status"}, widths, true)
		for _, m := range contract.Milestones {
			drawTableRow(pdf, []string{
				tr(m.Title),
				formatDate(m.DueDate),
				formatAmount(m.Amount),
				string(m.Status),
			}, widths, false)
		}
		pdf.Ln(4)
	}

	section(pdf, "Signatures")
	signatureBlock(pdf, tr, "Client", doc.Client, findSignature(contract.Signatures, contract.ClientID))
	signatureBlock(pdf, tr, "Service provider", doc.Provider, findSignature(contract.Signatures, contract.ProviderID))
	if !doc.IsFullySigned {
		pdf.SetTextColor(200, 0, 0)
		pdf.MultiCell(0, 6, "This contract is not binding until both parties have signed.", "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.Ln(4)
	pdf.SetFont(fontName, "", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", doc.GeneratedAt.UTC().Format(time.RFC3339)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 11)
}

func addPartyBlock(pdf *gofpdf.Fpdf, tr func(string) string, title string, party model.Party) {
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	lines := []string{
		safeValue(party.DisplayName()),
		fmt.Sprintf("Email: %s", safeValue(party.Email)),
		fmt.Sprintf("Account: %s", party.ID),
	}
	for _, line := range lines {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
}

func drawTableRow(pdf *gofpdf.Fpdf, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i == 2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, tr func(string) string, label string, party model.Party, sig *model.ContractSignature) {
	pdf.SetFont(fontName, "", 11)
	if sig == nil || !sig.IsSigned {
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s: ______________________ /%s/ (not signed)", label, safeValue(party.DisplayName()))), "", 1, "L", false, 0, "")
		return
	}
	line := fmt.Sprintf("%s: /%s/ signed %s", label, safeValue(party.DisplayName()), formatDateTime(sig.SignedAt))
	if sig.SignatureType == model.SignatureTypeText && sig.SignatureData != "" {
		line += fmt.Sprintf(" as \"%s\"", sig.SignatureData)
	} else {
		line += fmt.Sprintf(" (%s)", strings.ToLower(string(sig.SignatureType)))
	}
	pdf.CellFormat(0, 7, tr(line), "", 1, "L", false, 0, "")
}

func findSignature(sigs []model.ContractSignature, signer uuid.UUID) *model.ContractSignature {
	for i := range sigs {
		if sigs[i].SignerID == signer {
			return &sigs[i]
		}
	}
	return nil
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
