package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

type ContractFilter struct {
	// PartyID restricts to contracts where the user is client or provider.
	PartyID uuid.UUID
	// OnlyAsClient narrows PartyID to contracts the user hired for.
	OnlyAsClient bool
	ClientID     *uuid.UUID
	ProviderID   *uuid.UUID
	Status       *model.ContractStatus
}

func (r *ContractRepository) Create(ctx context.Context, contract *model.Contract) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(contract).Error
}

func (r *ContractRepository) Get(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetAggregate loads the contract with its signatures, milestones and time entries.
func (r *ContractRepository) GetAggregate(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).
		Preload("Signatures", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, created_at ASC") }).
		Preload("TimeEntries", func(db *gorm.DB) *gorm.DB { return db.Order("date DESC, created_at DESC") }).
		Where("id = ?", id).
		First(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// Lock serializes writers on the contract row for the rest of the transaction.
// Touching updated_at takes the row lock on Postgres and the write lock on SQLite.
func (r *ContractRepository) Lock(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE contracts SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.Get(ctx, id)
}

func (r *ContractRepository) List(ctx context.Context, filter ContractFilter) ([]model.Contract, error) {
	query := r.db.WithContext(ctx).Model(&model.Contract{})
	switch {
	case filter.PartyID != uuid.Nil && filter.OnlyAsClient:
		query = query.Where("client_id = ?", filter.PartyID)
	case filter.PartyID != uuid.Nil:
		query = query.Where("client_id = ? OR provider_id = ?", filter.PartyID, filter.PartyID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var contracts []model.Contract
	if err := query.Order("created_at DESC").Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *ContractRepository) ExistsForApplication(ctx context.Context, applicationID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Contract{}).
		Where("job_application_id = ?", applicationID).
		Count(&count).Error
	return count > 0, err
}

func (r *ContractRepository) ExistsForJobProvider(ctx context.Context, jobID, providerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Contract{}).
		Where("job_id = ? AND provider_id = ? AND job_application_id IS NULL", jobID, providerID).
		Count(&count).Error
	return count > 0, err
}

func (r *ContractRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.Contract{}).Where("id = ?", id).Updates(fields).Error
}

// TransitionStatus moves the contract to status only if it is currently in
// one of from. It reports whether the row changed.
func (r *ContractRepository) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from []model.ContractStatus,
	to model.ContractStatus,
	fields map[string]interface{},
) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&model.Contract{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// Delete removes the aggregate root and every child row it owns.
func (r *ContractRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	children := []interface{}{
		&model.ContractSignature{},
		&model.ContractMilestone{},
		&model.TimeEntry{},
	}
	for _, child := range children {
		if err := db.Where("contract_id = ?", id).Delete(child).Error; err != nil {
			return err
		}
	}
	res := db.Where("id = ?", id).Delete(&model.Contract{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EnsureSignature inserts an unsigned signature row unless one already exists
// for the signer.
func (r *ContractRepository) EnsureSignature(ctx context.Context, contractID, signerID uuid.UUID) error {
	sig := model.ContractSignature{
		ID:            uuid.New(),
		ContractID:    contractID,
		SignerID:      signerID,
		SignatureType: model.SignatureTypeDigital,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sig).Error
}

type SignaturePayload struct {
	Data      string
	Type      model.SignatureType
	IPAddress string
	UserAgent string
	SignedAt  time.Time
}

// MarkSigned flips an unsigned row to signed. False means the signer had
// already signed.
func (r *ContractRepository) MarkSigned(ctx context.Context, contractID, signerID uuid.UUID, payload SignaturePayload) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ContractSignature{}).
		Where("contract_id = ? AND signer_id = ? AND is_signed = ?", contractID, signerID, false).
		Updates(map[string]interface{}{
			"is_signed":      true,
			"signature_data": payload.Data,
			"signature_type": payload.Type,
			"ip_address":     payload.IPAddress,
			"user_agent":     payload.UserAgent,
			"signed_at":      payload.SignedAt,
			"updated_at":     payload.SignedAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ContractRepository) GetSignature(ctx context.Context, contractID, signerID uuid.UUID) (*model.ContractSignature, error) {
	var sig model.ContractSignature
	err := r.db.WithContext(ctx).
		Where("contract_id = ? AND signer_id = ?", contractID, signerID).
		First(&sig).Error
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (r *ContractRepository) ListSignatures(ctx context.Context, contractID uuid.UUID) ([]model.ContractSignature, error) {
	var sigs []model.ContractSignature
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Find(&sigs).Error
	return sigs, err
}
