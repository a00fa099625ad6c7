package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/skillspot-settlement/internal/billing"
	"github.com/nurpe/skillspot-settlement/internal/model"
)

func TestSubmitTimeEntry(t *testing.T) {
	f := newFixture(t)
	hourly := f.activeContract(model.PaymentScheduleHourly, "0", "200")
	fixed := f.activeContract(model.PaymentScheduleFixed, "1000", "")
	pending := f.draftContract(model.PaymentScheduleHourly, "0", "200")
	oddRate := f.activeContract(model.PaymentScheduleHourly, "0", "10.55")
	today := time.Now().UTC()

	tests := []struct {
		name    string
		input   SubmitTimeEntryInput
		wantErr error
	}{
		{
			name:    "client cannot log time",
			input:   SubmitTimeEntryInput{Principal: f.client, ContractID: hourly.ID, Date: today, Hours: dec("2")},
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "fixed contract",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: fixed.ID, Date: today, Hours: dec("2")},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "past date",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: hourly.ID, Date: today.AddDate(0, 0, -1), Hours: dec("2")},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "zero hours",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: hourly.ID, Date: today, Hours: dec("0")},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "too many hours",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: hourly.ID, Date: today, Hours: dec("10000")},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "three decimal places",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: hourly.ID, Date: today, Hours: dec("1.125")},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "amount finer than a cent",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: oddRate.ID, Date: today, Hours: dec("0.33")},
			wantErr: billing.ErrFractionalCents,
		},
		{
			name:    "contract not active",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: pending.ID, Date: today, Hours: dec("2")},
			wantErr: ErrPreconditionFailed,
		},
		{
			name:    "missing contract",
			input:   SubmitTimeEntryInput{Principal: f.provider, ContractID: uuid.New(), Date: today, Hours: dec("2")},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.timeEntries.Submit(f.ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	entry, err := f.timeEntries.Submit(f.ctx, SubmitTimeEntryInput{
		Principal:   f.provider,
		ContractID:  hourly.ID,
		Date:        today.AddDate(0, 0, 1),
		Hours:       dec("3.25"),
		Description: "Tiling",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry.Status != model.TimeEntryStatusPendingApproval {
		t.Errorf("expected PENDING_APPROVAL, got %s", entry.Status)
	}
	if got := f.notifier.sentTo(f.client.UserID); len(got) == 0 || got[len(got)-1].Title != "Time logged" {
		t.Errorf("expected the client to be told about the new entry, got %v", got)
	}
}

func TestReviewTimeEntry(t *testing.T) {
	f := newFixture(t)
	contract := f.activeContract(model.PaymentScheduleHourly, "0", "200")

	submit := func() *model.TimeEntry {
		t.Helper()
		entry, err := f.timeEntries.Submit(f.ctx, SubmitTimeEntryInput{
			Principal: f.provider, ContractID: contract.ID, Date: time.Now().UTC(), Hours: dec("2"),
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return entry
	}

	entry := submit()
	if _, err := f.timeEntries.Review(f.ctx, f.client, entry.ID, model.TimeEntryStatusPaid); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("review as PAID: expected invalid input, got %v", err)
	}
	if _, err := f.timeEntries.Review(f.ctx, f.provider, entry.ID, model.TimeEntryStatusApproved); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("provider approves own entry: expected permission denied, got %v", err)
	}
	outsider := f.addUser(model.UserTypeClient)
	if _, err := f.timeEntries.Review(f.ctx, outsider, entry.ID, model.TimeEntryStatusApproved); !errors.Is(err, ErrNotFound) {
		t.Errorf("outsider review: expected not found, got %v", err)
	}

	approved, err := f.timeEntries.Review(f.ctx, f.client, entry.ID, model.TimeEntryStatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.TimeEntryStatusApproved {
		t.Errorf("expected APPROVED, got %s", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != f.client.UserID || approved.ApprovedAt == nil {
		t.Error("expected approver and approval time to be recorded")
	}
	if _, err := f.timeEntries.Review(f.ctx, f.client, entry.ID, model.TimeEntryStatusRejected); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("second review: expected precondition failure, got %v", err)
	}

	rejected, err := f.timeEntries.Review(f.ctx, f.client, submit().ID, model.TimeEntryStatusRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.TimeEntryStatusRejected || rejected.ApprovedBy != nil {
		t.Errorf("expected REJECTED without approver, got %s %v", rejected.Status, rejected.ApprovedBy)
	}

	status := model.TimeEntryStatusApproved
	list, err := f.timeEntries.List(f.ctx, f.provider, contract.ID, &status)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != entry.ID {
		t.Errorf("expected only the approved entry, got %d entries", len(list))
	}
	all, err := f.timeEntries.List(f.ctx, f.client, contract.ID, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
	if _, err := f.timeEntries.List(f.ctx, outsider, contract.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("outsider list: expected not found, got %v", err)
	}
}

func TestUpdateTimeEntry(t *testing.T) {
	f := newFixture(t)
	contract := f.activeContract(model.PaymentScheduleHourly, "0", "200")
	entry, err := f.timeEntries.Submit(f.ctx, SubmitTimeEntryInput{
		Principal: f.provider, ContractID: contract.ID, Date: time.Now().UTC(), Hours: dec("2"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	hours := dec("4.5")
	note := "Grouting"
	updated, err := f.timeEntries.Update(f.ctx, UpdateTimeEntryInput{
		Principal: f.provider, EntryID: entry.ID, Hours: &hours, Description: &note,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Hours.Equal(hours) || updated.Description != note {
		t.Errorf("expected %s hours %q, got %s %q", hours, note, updated.Hours, updated.Description)
	}

	bad := dec("-1")
	if _, err := f.timeEntries.Update(f.ctx, UpdateTimeEntryInput{Principal: f.provider, EntryID: entry.ID, Hours: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative hours: expected invalid input, got %v", err)
	}
	third := dec("0.333")
	if _, err := f.timeEntries.Update(f.ctx, UpdateTimeEntryInput{Principal: f.provider, EntryID: entry.ID, Hours: &third}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("three decimal hours: expected invalid input, got %v", err)
	}
	if _, err := f.timeEntries.Update(f.ctx, UpdateTimeEntryInput{Principal: f.client, EntryID: entry.ID, Hours: &hours}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("client edit: expected permission denied, got %v", err)
	}

	if _, err := f.timeEntries.Review(f.ctx, f.client, entry.ID, model.TimeEntryStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.timeEntries.Update(f.ctx, UpdateTimeEntryInput{Principal: f.provider, EntryID: entry.ID, Hours: &hours}); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("edit approved entry: expected precondition failure, got %v", err)
	}
}
