package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"rps-backend/internal/models"
)

// ErrEscrowNotFound is returned when no escrow account row exists for
// the given address.
var ErrEscrowNotFound = errors.New("escrow account not found")

// EscrowAccountRepository defines data access for custodial escrow
// accounts. Rows are insert-only: the sealed secret is written once at
// creation and read back for the single payout.
type EscrowAccountRepository interface {
	Create(ctx context.Context, account *models.EscrowAccount) error
	GetByAddress(ctx context.Context, address string) (*models.EscrowAccount, error)
}

type escrowAccountRepository struct {
	db *gorm.DB
}

// NewEscrowAccountRepository creates a new EscrowAccountRepository instance.
func NewEscrowAccountRepository(db *gorm.DB) EscrowAccountRepository {
	return &escrowAccountRepository{db: db}
}

func (r *escrowAccountRepository) Create(ctx context.Context, account *models.EscrowAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *escrowAccountRepository) GetByAddress(ctx context.Context, address string) (*models.EscrowAccount, error) {
	var account models.EscrowAccount
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}
