package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/nurpe/skillspot-settlement/internal/model"
)

// migrationStatements back the settlement invariants with partial unique
// indexes. They are portable between Postgres and SQLite.
var migrationStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contract_signatures_signer
		ON contract_signatures (contract_id, signer_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_job_application
		ON contracts (job_application_id)
		WHERE job_application_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_job_provider
		ON contracts (job_id, provider_id)
		WHERE job_application_id IS NULL AND job_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_completed_contract
		ON payments (contract_id)
		WHERE status = 'COMPLETED' AND time_entry_id IS NULL AND milestone_id IS NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_completed_time_entry
		ON payments (time_entry_id)
		WHERE status = 'COMPLETED' AND time_entry_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_completed_milestone
		ON payments (milestone_id)
		WHERE status = 'COMPLETED' AND milestone_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_transactions_event
		ON payment_transactions (payment_id, transaction_type, external_event_id)
		WHERE external_event_id <> '';`,
	`CREATE INDEX IF NOT EXISTS idx_payments_time_entry
		ON payments (time_entry_id)
		WHERE time_entry_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_payments_milestone
		ON payments (milestone_id)
		WHERE milestone_id IS NOT NULL;`,
}

// Migrate creates the settlement tables and their invariant indexes. Tables
// owned by other services (users, jobs, job_applications, provider_profiles)
// are never touched.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Contract{},
		&model.ContractSignature{},
		&model.ContractMilestone{},
		&model.TimeEntry{},
		&model.Payment{},
		&model.PaymentTransaction{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
