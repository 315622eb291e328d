package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rps-backend/internal/models"
)

var (
	// ErrNotFound is returned when no wager exists for the given id.
	ErrNotFound = errors.New("wager not found")
	// ErrAlreadyTaken is returned when a conditional Take matched no
	// rows because another taker won the race.
	ErrAlreadyTaken = errors.New("wager already taken")
	// ErrAlreadyFinalized is returned when a conditional Finalize
	// matched no rows because the wager already has a recorded winner.
	ErrAlreadyFinalized = errors.New("wager already finalized")
)

// TakerFields is the taker side of a wager, applied in one conditional
// write.
type TakerFields struct {
	Address   string
	Signature string
	ChoiceEnc string
}

// WagerRepository defines data access for wagers. Take and Finalize are
// the two concurrency-control points of the whole system: both must be
// single conditional writes keyed on the guarded column being unset.
type WagerRepository interface {
	Create(ctx context.Context, wager *models.Wager) error
	GetByID(ctx context.Context, id string) (*models.Wager, error)
	Take(ctx context.Context, id string, taker TakerFields) error
	Finalize(ctx context.Context, id, winner, payoutSignature string) error
	ListByStatus(ctx context.Context, status models.WagerStatus, limit int) ([]*models.Wager, error)
	ListByAddress(ctx context.Context, address string, limit int) ([]*models.Wager, error)
}

// wagerRepository implements WagerRepository on gorm.
type wagerRepository struct {
	db *gorm.DB
}

// NewWagerRepository creates a new WagerRepository instance.
func NewWagerRepository(db *gorm.DB) WagerRepository {
	return &wagerRepository{db: db}
}

// Create inserts a new wager row.
func (r *wagerRepository) Create(ctx context.Context, wager *models.Wager) error {
	return r.db.WithContext(ctx).Create(wager).Error
}

// GetByID retrieves a wager by id.
func (r *wagerRepository) GetByID(ctx context.Context, id string) (*models.Wager, error) {
	var wager models.Wager
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&wager).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wager, nil
}

// Take assigns the taker side only if no taker is recorded yet. The
// WHERE clause on taker_address IS NULL is what prevents two concurrent
// takers from both succeeding.
func (r *wagerRepository) Take(ctx context.Context, id string, taker TakerFields) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("id = ? AND taker_address IS NULL", id).
		Updates(map[string]interface{}{
			"taker_address":    taker.Address,
			"taker_signature":  taker.Signature,
			"taker_choice_enc": taker.ChoiceEnc,
			"taken_at":         now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the id is unknown or someone beat us to it.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyTaken
	}
	return nil
}

// Finalize records the winner and payout proof together, only if no
// winner is recorded yet. This guarantees at-most-once payout recording
// even when completion is invoked twice concurrently.
func (r *wagerRepository) Finalize(ctx context.Context, id, winner, payoutSignature string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Wager{}).
		Where("id = ? AND winner_address IS NULL", id).
		Updates(map[string]interface{}{
			"winner_address":   winner,
			"payout_signature": payoutSignature,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}

// ListByStatus lists wagers in one lifecycle state, newest first.
func (r *wagerRepository) ListByStatus(ctx context.Context, status models.WagerStatus, limit int) ([]*models.Wager, error) {
	query := r.db.WithContext(ctx).Model(&models.Wager{})
	switch status {
	case models.WagerStatusOpen:
		query = query.Where("taker_address IS NULL AND winner_address IS NULL")
	case models.WagerStatusTaken:
		query = query.Where("taker_address IS NOT NULL AND winner_address IS NULL")
	case models.WagerStatusResolved:
		query = query.Where("winner_address IS NOT NULL")
	default:
		return nil, fmt.Errorf("unknown wager status %q", status)
	}

	var wagers []*models.Wager
	err := query.Order("created_at DESC").Limit(limit).Find(&wagers).Error
	if err != nil {
		return nil, err
	}
	return wagers, nil
}

// ListByAddress lists wagers where the address participates on either
// side, newest first.
func (r *wagerRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*models.Wager, error) {
	var wagers []*models.Wager
	err := r.db.WithContext(ctx).
		Where("maker_address = ? OR taker_address = ?", address, address).
		Order("created_at DESC").
		Limit(limit).
		Find(&wagers).Error
	if err != nil {
		return nil, err
	}
	return wagers, nil
}
