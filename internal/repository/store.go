package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories over one connection or one transaction.
type Store struct {
	db        *gorm.DB
	Contracts *ContractRepository
	Units     *UnitRepository
	Payments  *PaymentRepository
	Directory *DirectoryRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Contracts: NewContractRepository(db),
		Units:     NewUnitRepository(db),
		Payments:  NewPaymentRepository(db),
		Directory: NewDirectoryRepository(db),
	}
}

// Transaction runs fn against a Store bound to a single database transaction.
// Returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
