package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

func TestRender(t *testing.T) {
	entryID := uuid.New()
	completedAt := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	statement := model.LedgerStatement{
		Contract: model.Contract{
			ID:              uuid.New(),
			Title:           "Tutoring",
			TotalAmount:     decimal.NewFromInt(2000),
			Currency:        "USD",
			PaymentSchedule: model.PaymentScheduleHourly,
		},
		Payments: []model.Payment{
			{
				ID:             uuid.New(),
				TimeEntryID:    &entryID,
				Status:         model.PaymentStatusCompleted,
				Amount:         decimal.NewFromInt(600),
				PlatformFee:    decimal.NewFromInt(30),
				ProviderAmount: decimal.NewNullDecimal(decimal.NewFromInt(570)),
				Currency:       "USD",
				CompletedAt:    &completedAt,
				Transactions: []model.PaymentTransaction{
					{TransactionType: model.TransactionTypeCreated},
					{TransactionType: model.TransactionTypeCompleted, ExternalEventID: "evt_1", Details: datatypes.JSONMap{"charge_id": "ch_1"}},
				},
			},
			{
				ID:       uuid.New(),
				Status:   model.PaymentStatusRefunded,
				Amount:   decimal.NewFromInt(100),
				Currency: "USD",
			},
		},
		GeneratedAt: time.Now(),
	}

	out, err := NewGenerator().Render(statement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Summary" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	checks := []struct {
		sheet, cell, want string
	}{
		{"Summary", "B1", "Tutoring"},
		{"Summary", "B5", "600.00"},
		{"Summary", "B6", "100.00"},
		{"Summary", "D10", "COMPLETED"},
		{"Summary", "G10", "570.00"},
		{"Summary", "G11", ""},
		{sheets[1], "B3", "COMPLETED"},
		{sheets[1], "C11", "evt_1"},
		{sheets[1], "D11", `{"charge_id":"ch_1"}`},
	}
	for _, c := range checks {
		got, err := file.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Fatalf("%s!%s: %v", c.sheet, c.cell, err)
		}
		if got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, got, c.want)
		}
	}
}

func TestBuildSheetNameUnique(t *testing.T) {
	id := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	other := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	used := map[string]struct{}{}

	first := buildSheetName(model.Payment{ID: id}, used)
	used[first] = struct{}{}
	second := buildSheetName(model.Payment{ID: other}, used)

	if first != "Payment aaaaaaaa" {
		t.Errorf("unexpected first name %q", first)
	}
	if second != "Payment aaaaaaaa-2" {
		t.Errorf("unexpected second name %q", second)
	}
}

func TestSanitizeSheetName(t *testing.T) {
	tests := map[string]string{
		"a/b:c":  "a-b-c",
		"   ":    "Sheet",
		"[x]":    "-x-",
		"normal": "normal",
	}
	for in, want := range tests {
		if got := sanitizeSheetName(in); got != want {
			t.Errorf("sanitizeSheetName(%q) = %q, want %q", in, got, want)
		}
	}
}
