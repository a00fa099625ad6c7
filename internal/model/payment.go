package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// OpenPaymentStatuses are the states a settlement confirmation may move forward.
var OpenPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}

func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch s := PaymentStatus(raw); s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return s, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "STRIPE"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

type Payment struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_payments_contract" json:"contract_id"`
	MilestoneID *uuid.UUID `gorm:"type:uuid" json:"milestone_id,omitempty"`
	TimeEntryID *uuid.UUID `gorm:"type:uuid" json:"time_entry_id,omitempty"`
	PayerID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_payments_payer" json:"payer_id"`
	RecipientID uuid.UUID  `gorm:"type:uuid;not null;index:idx_payments_recipient" json:"recipient_id"`

	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Status        PaymentStatus   `gorm:"size:20;not null;index:idx_payments_status" json:"status"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Description   string          `gorm:"type:text" json:"description"`

	FeePercent     decimal.Decimal     `gorm:"type:numeric(5,2);not null" json:"fee_percent"`
	PlatformFee    decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"platform_fee"`
	ProviderAmount decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"provider_amount"`

	GatewayPaymentIntentID string `gorm:"size:255;index:idx_payments_intent" json:"gateway_payment_intent_id"`
	GatewaySessionID       string `gorm:"size:255;index:idx_payments_session" json:"gateway_session_id"`
	GatewayChargeID        string `gorm:"size:255;index:idx_payments_charge" json:"gateway_charge_id"`
	GatewayRefundID        string `gorm:"size:255" json:"gateway_refund_id"`
	GatewayTransferID      string `gorm:"size:255" json:"gateway_transfer_id"`

	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	FailedAt    *time.Time        `json:"failed_at,omitempty"`

	Transactions []PaymentTransaction `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"transactions,omitempty"`
}

// BillingUnit identifies what a payment settles.
type BillingUnit string

const (
	BillingUnitContract  BillingUnit = "CONTRACT"
	BillingUnitTimeEntry BillingUnit = "TIME_ENTRY"
	BillingUnitMilestone BillingUnit = "MILESTONE"
)

func (p *Payment) Unit() BillingUnit {
	switch {
	case p.TimeEntryID != nil:
		return BillingUnitTimeEntry
	case p.MilestoneID != nil:
		return BillingUnitMilestone
	default:
		return BillingUnitContract
	}
}

type TransactionType string

const (
	TransactionTypeCreated    TransactionType = "CREATED"
	TransactionTypeProcessing TransactionType = "PROCESSING"
	TransactionTypeCompleted  TransactionType = "COMPLETED"
	TransactionTypeFailed     TransactionType = "FAILED"
	TransactionTypeRefunded   TransactionType = "REFUNDED"
	TransactionTypeCancelled  TransactionType = "CANCELLED"
)

// PaymentTransaction is an append-only audit row. ExternalEventID is the
// gateway's own event id and is unique per (payment, type) when present.
type PaymentTransaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_payment_transactions_payment" json:"payment_id"`
	TransactionType TransactionType   `gorm:"size:20;not null" json:"transaction_type"`
	ExternalEventID string            `gorm:"size:255;not null;default:''" json:"external_event_id"`
	Details         datatypes.JSONMap `json:"details,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
