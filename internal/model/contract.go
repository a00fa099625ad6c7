package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContractStatus string

const (
	ContractStatusDraft             ContractStatus = "DRAFT"
	ContractStatusPendingSignatures ContractStatus = "PENDING_SIGNATURES"
	ContractStatusActive            ContractStatus = "ACTIVE"
	ContractStatusCompleted         ContractStatus = "COMPLETED"
	ContractStatusTerminated        ContractStatus = "TERMINATED"
	ContractStatusCancelled         ContractStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusCompleted, ContractStatusTerminated, ContractStatusCancelled:
		return true
	}
	return false
}

// IsSignable reports whether signatures may still be recorded.
func (s ContractStatus) IsSignable() bool {
	return s == ContractStatusDraft || s == ContractStatusPendingSignatures
}

func ParseContractStatus(raw string) (ContractStatus, bool) {
	switch s := ContractStatus(raw); s {
	case ContractStatusDraft, ContractStatusPendingSignatures, ContractStatusActive,
		ContractStatusCompleted, ContractStatusTerminated, ContractStatusCancelled:
		return s, true
	}
	return "", false
}

type PaymentSchedule string

const (
	PaymentScheduleFixed  PaymentSchedule = "FIXED"
	PaymentScheduleHourly PaymentSchedule = "HOURLY"
)

// Contract is the aggregate root: signatures, milestones and time entries
// live and die with it.
type Contract struct {
	ID               uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID         uuid.UUID           `gorm:"type:uuid;not null;index:idx_contracts_client" json:"client_id"`
	ProviderID       uuid.UUID           `gorm:"type:uuid;not null;index:idx_contracts_provider" json:"provider_id"`
	JobID            *uuid.UUID          `gorm:"type:uuid" json:"job_id,omitempty"`
	JobApplicationID *uuid.UUID          `gorm:"type:uuid" json:"job_application_id,omitempty"`
	Title            string              `gorm:"size:200;not null" json:"title"`
	Description      string              `gorm:"type:text" json:"description"`
	Terms            string              `gorm:"type:text" json:"terms"`
	TotalAmount      decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Currency         string              `gorm:"size:3;not null" json:"currency"`
	PaymentSchedule  PaymentSchedule     `gorm:"size:20;not null" json:"payment_schedule"`
	HourlyRate       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"hourly_rate"`
	StartDate        time.Time           `gorm:"type:date;not null" json:"start_date"`
	EndDate          *time.Time          `gorm:"type:date" json:"end_date,omitempty"`
	Status           ContractStatus      `gorm:"size:20;not null;index:idx_contracts_status" json:"status"`
	SignedAt         *time.Time          `json:"signed_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	Signatures  []ContractSignature `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"signatures,omitempty"`
	Milestones  []ContractMilestone `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"milestones,omitempty"`
	TimeEntries []TimeEntry         `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"time_entries,omitempty"`
}

func (c *Contract) IsParty(userID uuid.UUID) bool {
	return userID == c.ClientID || userID == c.ProviderID
}

type SignatureType string

const (
	SignatureTypeDigital SignatureType = "DIGITAL"
	SignatureTypeImage   SignatureType = "IMAGE"
	SignatureTypeText    SignatureType = "TEXT"
)

type ContractSignature struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID    uuid.UUID     `gorm:"type:uuid;not null" json:"contract_id"`
	SignerID      uuid.UUID     `gorm:"type:uuid;not null" json:"signer_id"`
	IsSigned      bool          `gorm:"not null;default:false" json:"is_signed"`
	SignatureData string        `gorm:"type:text" json:"signature_data,omitempty"`
	SignatureType SignatureType `gorm:"size:20;not null;default:DIGITAL" json:"signature_type"`
	IPAddress     string        `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent     string        `gorm:"type:text" json:"user_agent,omitempty"`
	SignedAt      *time.Time    `json:"signed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "PENDING"
	MilestoneStatusInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneStatusCompleted  MilestoneStatus = "COMPLETED"
	MilestoneStatusCancelled  MilestoneStatus = "CANCELLED"
)

func ParseMilestoneStatus(raw string) (MilestoneStatus, bool) {
	switch s := MilestoneStatus(raw); s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusCompleted, MilestoneStatusCancelled:
		return s, true
	}
	return "", false
}

// ContractMilestone is the legacy billing unit.
type ContractMilestone struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_milestones_contract" json:"contract_id"`
	Title       string          `gorm:"size:200;not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	DueDate     *time.Time      `gorm:"type:date" json:"due_date,omitempty"`
	Status      MilestoneStatus `gorm:"size:20;not null" json:"status"`
	Order       int             `gorm:"column:sort_order;not null;default:0" json:"order"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type TimeEntryStatus string

const (
	TimeEntryStatusPendingApproval TimeEntryStatus = "PENDING_APPROVAL"
	TimeEntryStatusApproved        TimeEntryStatus = "APPROVED"
	TimeEntryStatusRejected        TimeEntryStatus = "REJECTED"
	TimeEntryStatusPaid            TimeEntryStatus = "PAID"
)

// TimeEntry is the hourly billing unit logged by the provider.
type TimeEntry struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_time_entries_contract" json:"contract_id"`
	ProviderID  uuid.UUID       `gorm:"type:uuid;not null" json:"provider_id"`
	Date        time.Time       `gorm:"type:date;not null" json:"date"`
	Hours       decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"hours"`
	Description string          `gorm:"type:text" json:"description"`
	Status      TimeEntryStatus `gorm:"size:20;not null" json:"status"`
	ApprovedBy  *uuid.UUID      `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
