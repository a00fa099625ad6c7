package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/skillspot-settlement/internal/billing"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

// maxHoursPerEntry is the largest value the hours column can hold.
var maxHoursPerEntry = decimal.RequireFromString("9999.99")

type TimeEntryService struct {
	store    *repository.Store
	notifier notify.Notifier
	now      func() time.Time
}

func NewTimeEntryService(store *repository.Store, notifier notify.Notifier) *TimeEntryService {
	return &TimeEntryService{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SubmitTimeEntryInput struct {
	Principal   model.Principal
	ContractID  uuid.UUID
	Date        time.Time
	Hours       decimal.Decimal
	Description string
}

// Submit logs hours against an active hourly contract. Only the contract's
// provider may log time, and never for a past day.
func (s *TimeEntryService) Submit(ctx context.Context, input SubmitTimeEntryInput) (*model.TimeEntry, error) {
	var entry *model.TimeEntry
	var contract *model.Contract

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		contract, err = tx.Contracts.Lock(ctx, input.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if contract.ProviderID != input.Principal.UserID {
			return fmt.Errorf("%w: only the contract provider can log time", ErrPermissionDenied)
		}
		if contract.PaymentSchedule != model.PaymentScheduleHourly {
			return fmt.Errorf("%w: time entries can only be logged on hourly contracts", ErrInvalidInput)
		}
		if err := s.validateEntry(contract, input.Date, input.Hours); err != nil {
			return err
		}
		if contract.Status != model.ContractStatusActive {
			return fmt.Errorf("%w: time can only be logged on active contracts", ErrPreconditionFailed)
		}

		entry = &model.TimeEntry{
			ID:          uuid.New(),
			ContractID:  contract.ID,
			ProviderID:  input.Principal.UserID,
			Date:        dateOnly(input.Date),
			Hours:       input.Hours,
			Description: input.Description,
			Status:      model.TimeEntryStatusPendingApproval,
		}
		return tx.Units.CreateTimeEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Message{
		UserID:  contract.ClientID,
		ActorID: &entry.ProviderID,
		Title:   "Time logged",
		Message: fmt.Sprintf("%s hours were logged on %q and await your approval.", entry.Hours.StringFixed(2), contract.Title),
		Link:    contractLink(contract.ID),
	})
	return entry, nil
}

func (s *TimeEntryService) validateEntry(contract *model.Contract, date time.Time, hours decimal.Decimal) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if dateOnly(date).Before(dateOnly(s.now())) {
		return fmt.Errorf("%w: cannot log time for past dates", ErrInvalidInput)
	}
	if !hours.IsPositive() {
		return fmt.Errorf("%w: hours must be greater than zero", ErrInvalidInput)
	}
	if hours.GreaterThan(maxHoursPerEntry) {
		return fmt.Errorf("%w: hours cannot exceed %s per entry", ErrInvalidInput, maxHoursPerEntry)
	}
	if !hours.Equal(hours.Round(2)) {
		return fmt.Errorf("%w: hours allow at most two decimal places", ErrInvalidInput)
	}
	if _, err := billing.TimeEntryAmount(contract, &model.TimeEntry{Hours: hours}); err != nil {
		return billingError(err)
	}
	return nil
}

type UpdateTimeEntryInput struct {
	Principal   model.Principal
	EntryID     uuid.UUID
	Date        *time.Time
	Hours       *decimal.Decimal
	Description *string
}

// Update edits an entry that is still awaiting approval.
func (s *TimeEntryService) Update(ctx context.Context, input UpdateTimeEntryInput) (*model.TimeEntry, error) {
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		entry, err := tx.Units.GetTimeEntry(ctx, input.EntryID)
		if err != nil {
			return notFound(err, "time entry")
		}
		contract, err := tx.Contracts.Lock(ctx, entry.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(input.Principal.UserID) {
			return fmt.Errorf("%w: time entry", ErrNotFound)
		}
		if entry.ProviderID != input.Principal.UserID {
			return fmt.Errorf("%w: only the provider can edit the time entry", ErrPermissionDenied)
		}
		if entry.Status != model.TimeEntryStatusPendingApproval {
			return fmt.Errorf("%w: only pending time entries can be edited", ErrPreconditionFailed)
		}

		date, hours := entry.Date, entry.Hours
		if input.Date != nil {
			date = dateOnly(*input.Date)
		}
		if input.Hours != nil {
			hours = *input.Hours
		}
		if input.Date != nil || input.Hours != nil {
			if err := s.validateEntry(contract, date, hours); err != nil {
				return err
			}
		}

		fields := map[string]interface{}{"date": date, "hours": hours}
		if input.Description != nil {
			fields["description"] = *input.Description
		}
		ok, err := tx.Units.TransitionTimeEntry(ctx, entry.ID,
			[]model.TimeEntryStatus{model.TimeEntryStatusPendingApproval},
			model.TimeEntryStatusPendingApproval, fields)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: time entry was reviewed concurrently", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.store.Units.GetTimeEntry(ctx, input.EntryID)
}

// Review approves or rejects a pending entry. Only the client may review.
func (s *TimeEntryService) Review(ctx context.Context, principal model.Principal, entryID uuid.UUID, decision model.TimeEntryStatus) (*model.TimeEntry, error) {
	if decision != model.TimeEntryStatusApproved && decision != model.TimeEntryStatusRejected {
		return nil, fmt.Errorf("%w: status must be APPROVED or REJECTED", ErrInvalidInput)
	}

	now := s.now()
	var contract *model.Contract
	var entry *model.TimeEntry

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		entry, err = tx.Units.GetTimeEntry(ctx, entryID)
		if err != nil {
			return notFound(err, "time entry")
		}
		contract, err = tx.Contracts.Lock(ctx, entry.ContractID)
		if err != nil {
			return notFound(err, "contract")
		}
		if !contract.IsParty(principal.UserID) {
			return fmt.Errorf("%w: time entry", ErrNotFound)
		}
		if contract.ClientID != principal.UserID {
			return fmt.Errorf("%w: only the client can review time entries", ErrPermissionDenied)
		}

		fields := map[string]interface{}{}
		if decision == model.TimeEntryStatusApproved {
			fields["approved_by"] = principal.UserID
			fields["approved_at"] = now
		}
		ok, err := tx.Units.TransitionTimeEntry(ctx, entry.ID,
			[]model.TimeEntryStatus{model.TimeEntryStatusPendingApproval}, decision, fields)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: time entry is %s", ErrPreconditionFailed, entry.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	verb := "approved"
	if decision == model.TimeEntryStatusRejected {
		verb = "rejected"
	}
	s.notifier.Notify(ctx, notify.Message{
		UserID:  entry.ProviderID,
		ActorID: &principal.UserID,
		Title:   "Time entry " + verb,
		Message: fmt.Sprintf("Your %s hours on %q were %s.", entry.Hours.StringFixed(2), contract.Title, verb),
		Link:    contractLink(contract.ID),
	})
	return s.store.Units.GetTimeEntry(ctx, entryID)
}

func (s *TimeEntryService) List(ctx context.Context, principal model.Principal, contractID uuid.UUID, status *model.TimeEntryStatus) ([]model.TimeEntry, error) {
	if _, err := loadPartyContract(ctx, s.store, principal.UserID, contractID); err != nil {
		return nil, err
	}
	return s.store.Units.ListTimeEntries(ctx, contractID, status)
}
