package billing

import (
	"github.com/shopspring/decimal"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

// IsFullySigned reports whether both parties have a signed signature row.
func IsFullySigned(contract *model.Contract, signatures []model.ContractSignature) bool {
	var client, provider bool
	for _, s := range signatures {
		if !s.IsSigned || s.ContractID != contract.ID {
			continue
		}
		switch s.SignerID {
		case contract.ClientID:
			client = true
		case contract.ProviderID:
			provider = true
		}
	}
	return client && provider
}

// CompletionPercentage projects contract progress from what has been settled.
// FIXED contracts are all-or-nothing on the completed payment sum; HOURLY
// contracts count paid hours against the total.
func CompletionPercentage(contract *model.Contract, payments []model.Payment, entries []model.TimeEntry) int {
	if contract.PaymentSchedule == model.PaymentScheduleFixed {
		paid, settled := decimal.Zero, false
		for _, p := range payments {
			if p.ContractID == contract.ID && p.Status == model.PaymentStatusCompleted {
				paid = paid.Add(p.Amount)
				settled = true
			}
		}
		if settled && paid.GreaterThanOrEqual(contract.TotalAmount) {
			return 100
		}
		return 0
	}

	if !contract.HourlyRate.Valid || contract.TotalAmount.IsZero() {
		return 0
	}
	hours := decimal.Zero
	for _, e := range entries {
		if e.ContractID == contract.ID && e.Status == model.TimeEntryStatusPaid {
			hours = hours.Add(e.Hours)
		}
	}
	paid := hours.Mul(contract.HourlyRate.Decimal)
	pct := paid.Div(contract.TotalAmount).Mul(hundred).Floor().IntPart()
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// AllMilestonesCompleted is true when at least one milestone exists and every
// one of them is COMPLETED.
func AllMilestonesCompleted(milestones []model.ContractMilestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if m.Status != model.MilestoneStatusCompleted {
			return false
		}
	}
	return true
}
