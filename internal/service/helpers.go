package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/billing"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

// FileResult is a rendered document ready to be downloaded.
type FileResult struct {
	FileName    string
	ContentType string
	Content     []byte
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// billingError maps calculator failures onto the validation sentinel.
func billingError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeCurrency(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// loadPartyContract reads the contract and hides it from non-parties.
func loadPartyContract(ctx context.Context, store *repository.Store, userID, contractID uuid.UUID) (*model.Contract, error) {
	contract, err := store.Contracts.Get(ctx, contractID)
	if err != nil {
		return nil, notFound(err, "contract")
	}
	if !contract.IsParty(userID) {
		return nil, fmt.Errorf("%w: contract", ErrNotFound)
	}
	return contract, nil
}

// unitSettled reports whether paying the unit would settle work that is
// already paid. On FIXED contracts the whole-contract payment and milestone
// payments exclude each other.
func unitSettled(ctx context.Context, tx *repository.Store, contract *model.Contract, unit model.BillingUnit, unitID *uuid.UUID, excludeID uuid.UUID) (bool, error) {
	taken, err := tx.Payments.HasCompleted(ctx, contract.ID, unit, unitID, excludeID)
	if err != nil || taken || contract.PaymentSchedule != model.PaymentScheduleFixed {
		return taken, err
	}
	switch unit {
	case model.BillingUnitContract:
		return tx.Payments.HasAnyCompleted(ctx, contract.ID, excludeID)
	case model.BillingUnitMilestone:
		return tx.Payments.HasCompleted(ctx, contract.ID, model.BillingUnitContract, nil, excludeID)
	}
	return false, nil
}

// completeContractIfMilestonesDone drives an ACTIVE contract to COMPLETED
// once every milestone is COMPLETED.
func completeContractIfMilestonesDone(ctx context.Context, tx *repository.Store, contractID uuid.UUID, now time.Time) (bool, error) {
	milestones, err := tx.Units.ListMilestones(ctx, contractID)
	if err != nil {
		return false, err
	}
	if !billing.AllMilestonesCompleted(milestones) {
		return false, nil
	}
	return tx.Contracts.TransitionStatus(ctx, contractID,
		[]model.ContractStatus{model.ContractStatusActive},
		model.ContractStatusCompleted,
		map[string]interface{}{"completed_at": now},
	)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
