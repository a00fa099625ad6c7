// Package billing resolves what a billing unit costs and how a payment is
// split between the platform and the provider. Nothing here touches storage.
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

var (
	ErrHourlyRateRequired = errors.New("hourly rate is required and must be positive for hourly contracts")
	ErrWrongSchedule      = errors.New("billing unit does not match contract payment schedule")
	ErrAmountMismatch     = errors.New("amount does not match billable amount")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrBelowMinimum       = errors.New("amount is below the gateway minimum")
	ErrMilestoneOverflow  = errors.New("total milestone amounts cannot exceed contract total amount")
	ErrInvalidFeePercent  = errors.New("fee percent must be in [0, 100)")
	ErrFractionalCents    = errors.New("hours multiplied by the hourly rate must be a whole number of cents")
)

var hundred = decimal.NewFromInt(100)

// zeroDecimalCurrencies are charged in whole units at the gateway.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// Unit selects the thing being paid for. Both pointers nil means the whole
// fixed-price contract.
type Unit struct {
	TimeEntry *model.TimeEntry
	Milestone *model.ContractMilestone
}

// ValidateSchedule checks the schedule fields a contract is created with.
func ValidateSchedule(schedule model.PaymentSchedule, hourlyRate decimal.NullDecimal) error {
	switch schedule {
	case model.PaymentScheduleHourly:
		if !hourlyRate.Valid || !hourlyRate.Decimal.IsPositive() {
			return ErrHourlyRateRequired
		}
		return nil
	case model.PaymentScheduleFixed:
		return nil
	default:
		return fmt.Errorf("unknown payment schedule %q", schedule)
	}
}

// TimeEntryAmount is hours × hourly rate. A product finer than a cent is
// refused, never rounded.
func TimeEntryAmount(contract *model.Contract, entry *model.TimeEntry) (decimal.Decimal, error) {
	if !contract.HourlyRate.Valid {
		return decimal.Zero, ErrHourlyRateRequired
	}
	return HoursAmount(entry.Hours, contract.HourlyRate.Decimal)
}

// HoursAmount multiplies hours by rate and requires the result to fit in cents.
func HoursAmount(hours, rate decimal.Decimal) (decimal.Decimal, error) {
	amount := hours.Mul(rate)
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: %s h at %s is %s", ErrFractionalCents, hours.String(), rate.String(), amount.String())
	}
	return amount, nil
}

// ResolveAmount returns the billable amount of a unit under the contract's schedule.
func ResolveAmount(contract *model.Contract, unit Unit) (decimal.Decimal, error) {
	if unit.TimeEntry != nil && unit.Milestone != nil {
		return decimal.Zero, fmt.Errorf("%w: time entry and milestone are mutually exclusive", ErrWrongSchedule)
	}
	switch {
	case unit.Milestone != nil:
		return unit.Milestone.Amount, nil
	case unit.TimeEntry != nil:
		if contract.PaymentSchedule != model.PaymentScheduleHourly {
			return decimal.Zero, fmt.Errorf("%w: time entries are billed on hourly contracts only", ErrWrongSchedule)
		}
		return TimeEntryAmount(contract, unit.TimeEntry)
	default:
		if contract.PaymentSchedule != model.PaymentScheduleFixed {
			return decimal.Zero, fmt.Errorf("%w: hourly contracts are billed per time entry", ErrWrongSchedule)
		}
		return contract.TotalAmount, nil
	}
}

// ValidateAmount resolves the unit and checks the supplied amount against it.
func ValidateAmount(contract *model.Contract, unit Unit, supplied decimal.Decimal) (decimal.Decimal, error) {
	if !supplied.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	expected, err := ResolveAmount(contract, unit)
	if err != nil {
		return decimal.Zero, err
	}
	if !expected.Equal(supplied) {
		return decimal.Zero, fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, expected.String(), supplied.String())
	}
	return expected, nil
}

// SplitFee divides amount into the platform fee and the provider share.
// The fee is rounded to cents and the provider share takes the remainder,
// so fee + provider == amount exactly.
func SplitFee(amount, feePercent decimal.Decimal) (fee, provider decimal.Decimal, err error) {
	if err := ValidateFeePercent(feePercent); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	fee = amount.Mul(feePercent).Div(hundred).Round(2)
	return fee, amount.Sub(fee), nil
}

func ValidateFeePercent(feePercent decimal.Decimal) error {
	if feePercent.IsNegative() || feePercent.GreaterThanOrEqual(hundred) {
		return ErrInvalidFeePercent
	}
	return nil
}

// ToMinorUnits converts an amount to the gateway's smallest currency unit.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// CheckMinimum enforces the per-currency floor. Currencies without a floor pass.
func CheckMinimum(amount decimal.Decimal, currency string, minimums map[string]decimal.Decimal) error {
	floor, ok := minimums[strings.ToUpper(currency)]
	if !ok {
		return nil
	}
	if amount.LessThan(floor) {
		return fmt.Errorf("%w: payment amount must be at least %s %s", ErrBelowMinimum, floor.String(), strings.ToUpper(currency))
	}
	return nil
}

// CheckMilestoneBudget verifies that adding amount keeps the milestone sum
// within the contract total.
func CheckMilestoneBudget(contract *model.Contract, existing []model.ContractMilestone, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNonPositiveAmount
	}
	sum := decimal.Zero
	for _, m := range existing {
		sum = sum.Add(m.Amount)
	}
	if sum.Add(amount).GreaterThan(contract.TotalAmount) {
		return ErrMilestoneOverflow
	}
	return nil
}
