package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

type PaymentRole string

const (
	RoleEither    PaymentRole = ""
	RolePayer     PaymentRole = "payer"
	RoleRecipient PaymentRole = "recipient"
)

type PaymentFilter struct {
	UserID      uuid.UUID
	Role        PaymentRole
	ContractID  *uuid.UUID
	Status      *model.PaymentStatus
	MilestoneID *uuid.UUID
	TimeEntryID *uuid.UUID
}

func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payment).Error
}

func (r *PaymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetWithTransactions(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Payment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var payments []model.Payment
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) FindByIntent(ctx context.Context, intentID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_payment_intent_id = ?", intentID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) FindBySession(ctx context.Context, sessionID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) FindByCharge(ctx context.Context, chargeID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_charge_id = ?", chargeID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]model.Payment, error) {
	query := r.db.WithContext(ctx).Model(&model.Payment{})
	if filter.UserID != uuid.Nil {
		switch filter.Role {
		case RolePayer:
			query = query.Where("payer_id = ?", filter.UserID)
		case RoleRecipient:
			query = query.Where("recipient_id = ?", filter.UserID)
		default:
			query = query.Where("payer_id = ? OR recipient_id = ?", filter.UserID, filter.UserID)
		}
	}
	if filter.ContractID != nil {
		query = query.Where("contract_id = ?", *filter.ContractID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.MilestoneID != nil {
		query = query.Where("milestone_id = ?", *filter.MilestoneID)
	}
	if filter.TimeEntryID != nil {
		query = query.Where("time_entry_id = ?", *filter.TimeEntryID)
	}

	var payments []model.Payment
	err := query.Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// ListForContract returns every payment of the contract with its audit trail.
func (r *PaymentRepository) ListForContract(ctx context.Context, contractID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// HasCompleted reports whether the billing unit already has a COMPLETED
// payment, ignoring the payment excludeID.
func (r *PaymentRepository) HasCompleted(ctx context.Context, contractID uuid.UUID, unit model.BillingUnit, unitID *uuid.UUID, excludeID uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ?", model.PaymentStatusCompleted)
	switch unit {
	case model.BillingUnitTimeEntry:
		query = query.Where("time_entry_id = ?", *unitID)
	case model.BillingUnitMilestone:
		query = query.Where("milestone_id = ?", *unitID)
	default:
		query = query.Where("contract_id = ? AND time_entry_id IS NULL AND milestone_id IS NULL", contractID)
	}
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

// HasAnyCompleted reports whether the contract has a COMPLETED payment for
// any unit, ignoring the payment excludeID.
func (r *PaymentRepository) HasAnyCompleted(ctx context.Context, contractID uuid.UUID, excludeID uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("contract_id = ? AND status = ?", contractID, model.PaymentStatusCompleted)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

// FindOpenForTimeEntry returns the newest PENDING or PROCESSING payment of the entry, if any.
func (r *PaymentRepository) FindOpenForTimeEntry(ctx context.Context, entryID uuid.UUID) (*model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("time_entry_id = ? AND status IN ?", entryID, model.OpenPaymentStatuses).
		Order("created_at DESC").
		Limit(1).
		Find(&payments).Error
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

// Transition moves the payment to status only if it is currently in one of
// from. It reports whether the row changed.
func (r *PaymentRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from []model.PaymentStatus,
	to model.PaymentStatus,
	fields map[string]interface{},
) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// UpdateGatewayRefs stores gateway identifiers without touching the status.
func (r *PaymentRepository) UpdateGatewayRefs(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", id).Updates(fields).Error
}

// AppendTransaction inserts an audit row. A row with the same non-empty
// external event id for the same payment and type is skipped; the result
// reports whether a row was written.
func (r *PaymentRepository) AppendTransaction(ctx context.Context, txn *model.PaymentTransaction) (bool, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)
	return res.RowsAffected > 0, res.Error
}

func (r *PaymentRepository) HasTransaction(ctx context.Context, paymentID uuid.UUID, txnType model.TransactionType, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where("payment_id = ? AND transaction_type = ? AND external_event_id = ?", paymentID, txnType, eventID).
		Count(&count).Error
	return count > 0, err
}
