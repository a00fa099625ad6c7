package excel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Render writes a summary sheet with every payment of the contract and one
// sheet per payment holding its audit trail.
func (g *Generator) Render(statement model.LedgerStatement) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	summarySheet := "Summary"
	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, summarySheet, statement); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, payment := range statement.Payments {
		sheetName := buildSheetName(payment, usedNames)
		usedNames[sheetName] = struct{}{}

		if _, err := file.NewSheet(sheetName); err != nil {
			return nil, err
		}
		if err := g.writeDetail(file, sheetName, payment); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, statement model.LedgerStatement) error {
	contract := statement.Contract
	totals := sumByStatus(statement.Payments)

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Contract")
	set("B1", contract.Title)
	set("A2", "Contract ID")
	set("B2", contract.ID.String())
	set("A3", "Payment schedule")
	set("B3", string(contract.PaymentSchedule))
	set("A4", "Total amount")
	set("B4", formatAmount(contract.TotalAmount)+" "+contract.Currency)
	set("A5", "Completed")
	set("B5", formatAmount(totals[model.PaymentStatusCompleted]))
	set("A6", "Refunded")
	set("B6", formatAmount(totals[model.PaymentStatusRefunded]))
	set("A7", "Generated at")
	set("B7", formatDateTime(statement.GeneratedAt))

	tableRow := 9
	headers := []string{
		"Payment ID",
		"Created",
		"Billing unit",
		"Status",
		"Amount",
		"Platform fee",
		"Provider amount",
		"Currency",
		"Completed",
		"Gateway intent",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, p := range statement.Payments {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), p.ID.String())
		set(fmt.Sprintf("B%d", row), formatDateTime(p.CreatedAt))
		set(fmt.Sprintf("C%d", row), unitLabel(p))
		set(fmt.Sprintf("D%d", row), string(p.Status))
		set(fmt.Sprintf("E%d", row), formatAmount(p.Amount))
		set(fmt.Sprintf("F%d", row), formatAmount(p.PlatformFee))
		set(fmt.Sprintf("G%d", row), formatNullAmount(p.ProviderAmount))
		set(fmt.Sprintf("H%d", row), p.Currency)
		set(fmt.Sprintf("I%d", row), formatTimePtr(p.CompletedAt))
		set(fmt.Sprintf("J%d", row), p.GatewayPaymentIntentID)
	}

	_ = file.SetColWidth(sheet, "A", "A", 38)
	_ = file.SetColWidth(sheet, "B", "B", 20)
	_ = file.SetColWidth(sheet, "C", "C", 48)
	_ = file.SetColWidth(sheet, "D", "H", 14)
	_ = file.SetColWidth(sheet, "I", "J", 24)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, payment model.Payment) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Payment ID")
	set("B1", payment.ID.String())
	set("A2", "Billing unit")
	set("B2", unitLabel(payment))
	set("A3", "Status")
	set("B3", string(payment.Status))
	set("A4", "Amount")
	set("B4", formatAmount(payment.Amount)+" "+payment.Currency)
	set("A5", "Fee percent")
	set("B5", payment.FeePercent.String())
	set("A6", "Charge")
	set("B6", payment.GatewayChargeID)
	set("A7", "Refund")
	set("B7", payment.GatewayRefundID)

	tableRow := 9
	headers := []string{"Recorded", "Type", "Gateway event", "Details"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, txn := range payment.Transactions {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), formatDateTime(txn.CreatedAt))
		set(fmt.Sprintf("B%d", row), string(txn.TransactionType))
		set(fmt.Sprintf("C%d", row), txn.ExternalEventID)
		set(fmt.Sprintf("D%d", row), formatDetails(txn.Details))
	}

	_ = file.SetColWidth(sheet, "A", "A", 20)
	_ = file.SetColWidth(sheet, "B", "B", 14)
	_ = file.SetColWidth(sheet, "C", "C", 32)
	_ = file.SetColWidth(sheet, "D", "D", 60)
	return nil
}

func unitLabel(p model.Payment) string {
	switch {
	case p.TimeEntryID != nil:
		return "Time entry " + p.TimeEntryID.String()
	case p.MilestoneID != nil:
		return "Milestone " + p.MilestoneID.String()
	default:
		return "Contract"
	}
}

func buildSheetName(payment model.Payment, used map[string]struct{}) string {
	base := sanitizeSheetName(fmt.Sprintf("Payment %s", payment.ID.String()[:8]))
	if len(base) > 31 {
		base = base[:31]
	}

	nameCandidate := base
	counter := 2
	for {
		if _, exists := used[nameCandidate]; !exists {
			return nameCandidate
		}
		suffix := fmt.Sprintf("-%d", counter)
		trimmed := base
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		nameCandidate = trimmed + suffix
		counter++
	}
}

func sanitizeSheetName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Sheet"
	}

	replacer := strings.NewReplacer(
		"[", "-",
		"]", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"/", "-",
		"\\", "-",
	)
	value = strings.TrimSpace(replacer.Replace(value))
	if value == "" {
		return "Sheet"
	}
	return value
}

func sumByStatus(payments []model.Payment) map[model.PaymentStatus]decimal.Decimal {
	totals := make(map[model.PaymentStatus]decimal.Decimal)
	for _, p := range payments {
		totals[p.Status] = totals[p.Status].Add(p.Amount)
	}
	return totals
}

func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(raw)
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatNullAmount(value decimal.NullDecimal) string {
	if !value.Valid {
		return ""
	}
	return value.Decimal.StringFixed(2)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDateTime(*t)
}
