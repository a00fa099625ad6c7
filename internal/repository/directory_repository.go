package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

// DirectoryRepository reads and writes tables owned by the identity, job and
// profile services. It never migrates them.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) GetParty(ctx context.Context, id uuid.UUID) (*model.Party, error) {
	var party model.Party
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, email, COALESCE(full_name, '') AS full_name, user_type
		FROM users
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&party).Error; err != nil {
		return nil, err
	}
	if party.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &party, nil
}

func (r *DirectoryRepository) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, client_id, status
		FROM jobs
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

func (r *DirectoryRepository) GetJobApplication(ctx context.Context, id uuid.UUID) (*model.JobApplication, error) {
	var app model.JobApplication
	if err := r.db.WithContext(ctx).Raw(`
		SELECT
			ja.id,
			ja.job_id,
			ja.provider_id,
			j.client_id AS job_client
		FROM job_applications ja
		JOIN jobs j ON j.id = ja.job_id
		WHERE ja.id = ?
		LIMIT 1
	`, id).Scan(&app).Error; err != nil {
		return nil, err
	}
	if app.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &app, nil
}

func (r *DirectoryRepository) MarkJobInProgress(ctx context.Context, jobID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE jobs SET status = ? WHERE id = ?
	`, model.JobStatusInProgress, jobID).Error
}

// GetPayoutAccount returns nil without error when the provider has no profile.
func (r *DirectoryRepository) GetPayoutAccount(ctx context.Context, userID uuid.UUID) (*model.PayoutAccount, error) {
	var row struct {
		UserID               uuid.UUID
		StripeAccountID      string
		StripeAccountEnabled bool
	}
	if err := r.db.WithContext(ctx).Raw(`
		SELECT
			user_id,
			COALESCE(stripe_account_id, '') AS stripe_account_id,
			COALESCE(stripe_account_enabled, FALSE) AS stripe_account_enabled
		FROM provider_profiles
		WHERE user_id = ?
		LIMIT 1
	`, userID).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &model.PayoutAccount{
		UserID:    row.UserID,
		AccountID: row.StripeAccountID,
		Enabled:   row.StripeAccountEnabled,
	}, nil
}

func (r *DirectoryRepository) CreditEarnings(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE provider_profiles
		SET total_earnings = COALESCE(total_earnings, 0) + ?
		WHERE user_id = ?
	`, amount, userID).Error
}
