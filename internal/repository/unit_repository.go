package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

// UnitRepository stores the billing units of a contract: milestones and time entries.
type UnitRepository struct {
	db *gorm.DB
}

func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) CreateMilestone(ctx context.Context, milestone *model.ContractMilestone) error {
	return r.db.WithContext(ctx).Create(milestone).Error
}

func (r *UnitRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*model.ContractMilestone, error) {
	var milestone model.ContractMilestone
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&milestone).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *UnitRepository) ListMilestones(ctx context.Context, contractID uuid.UUID) ([]model.ContractMilestone, error) {
	var milestones []model.ContractMilestone
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("sort_order ASC, created_at ASC").
		Find(&milestones).Error
	return milestones, err
}

func (r *UnitRepository) TransitionMilestone(
	ctx context.Context,
	id uuid.UUID,
	from []model.MilestoneStatus,
	to model.MilestoneStatus,
	completedAt *time.Time,
) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	res := r.db.WithContext(ctx).Model(&model.ContractMilestone{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *UnitRepository) CreateTimeEntry(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *UnitRepository) GetTimeEntry(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *UnitRepository) ListTimeEntries(ctx context.Context, contractID uuid.UUID, status *model.TimeEntryStatus) ([]model.TimeEntry, error) {
	query := r.db.WithContext(ctx).Where("contract_id = ?", contractID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var entries []model.TimeEntry
	err := query.Order("date ASC, created_at ASC").Find(&entries).Error
	return entries, err
}

// TransitionTimeEntry applies fields and the new status only while the entry
// is in one of from.
func (r *UnitRepository) TransitionTimeEntry(
	ctx context.Context,
	id uuid.UUID,
	from []model.TimeEntryStatus,
	to model.TimeEntryStatus,
	fields map[string]interface{},
) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&model.TimeEntry{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}
