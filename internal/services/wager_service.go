package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"rps-backend/internal/commitment"
	"rps-backend/internal/escrow"
	"rps-backend/internal/events"
	"rps-backend/internal/game"
	"rps-backend/internal/metrics"
	"rps-backend/internal/models"
	"rps-backend/internal/repository"
)

// ErrInvalidInput marks caller mistakes: missing fields, unknown
// choices, malformed amounts. Handlers translate it to a 4xx; anything
// not wrapping it is a server fault.
var ErrInvalidInput = errors.New("invalid wager input")

// CreateWagerInput carries everything the maker supplies. The funding
// transfer must already be confirmed on the ledger before this is
// called; the backend does not initiate the maker's deposit.
type CreateWagerInput struct {
	MakerAddress     string
	MakerChoice      string
	Amount           string
	FundingSignature string
	EscrowAddress    string

	// Token fields, empty for native-coin wagers.
	TokenMint     string
	TokenDecimals int
}

// TakeWagerInput carries the taker side.
type TakeWagerInput struct {
	TakerAddress     string
	TakerChoice      string
	FundingSignature string
}

// WagerService composes the codec, custodian and store into the wager
// lifecycle operations.
type WagerService struct {
	wagers    repository.WagerRepository
	codec     *commitment.Codec
	custodian *escrow.Custodian
	publisher *events.Publisher
}

func NewWagerService(wagers repository.WagerRepository, codec *commitment.Codec, custodian *escrow.Custodian, publisher *events.Publisher) *WagerService {
	return &WagerService{
		wagers:    wagers,
		codec:     codec,
		custodian: custodian,
		publisher: publisher,
	}
}

// CreateEscrow provisions a single-use escrow address for a wager about
// to be created. The caller funds it before calling Create.
func (s *WagerService) CreateEscrow(ctx context.Context) (*models.EscrowAccount, error) {
	return s.custodian.CreateEscrow(ctx)
}

// Create records a new open wager with the maker's sealed choice.
func (s *WagerService) Create(ctx context.Context, input CreateWagerInput) (*models.Wager, error) {
	choice, err := game.ParseChoice(input.MakerChoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.MakerAddress == "" {
		return nil, fmt.Errorf("%w: maker address is required", ErrInvalidInput)
	}
	if input.FundingSignature == "" {
		return nil, fmt.Errorf("%w: maker funding signature is required", ErrInvalidInput)
	}
	if input.EscrowAddress == "" {
		return nil, fmt.Errorf("%w: escrow address is required", ErrInvalidInput)
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: invalid wager amount %q", ErrInvalidInput, input.Amount)
	}

	wager := &models.Wager{
		ID:             uuid.NewString(),
		MakerAddress:   input.MakerAddress,
		MakerSignature: input.FundingSignature,
		Amount:         amount.String(),
		EscrowAddress:  input.EscrowAddress,
		AssetKind:      models.AssetKindNative,
	}

	if input.TokenMint != "" {
		if input.TokenDecimals < 0 {
			return nil, fmt.Errorf("%w: invalid token decimals %d", ErrInvalidInput, input.TokenDecimals)
		}
		baseUnits := amount.Shift(int32(input.TokenDecimals))
		if !baseUnits.IsInteger() {
			return nil, fmt.Errorf("%w: amount %s has more precision than the token's %d decimals", ErrInvalidInput, amount, input.TokenDecimals)
		}
		wager.AssetKind = models.AssetKindToken
		wager.TokenMint = input.TokenMint
		wager.TokenDecimals = input.TokenDecimals
		wager.BaseUnitsAmount = baseUnits.String()
	}

	sealed, err := s.codec.SealChoice(choice)
	if err != nil {
		return nil, fmt.Errorf("seal maker choice: %w", err)
	}
	wager.MakerChoiceEnc = sealed

	if err := s.wagers.Create(ctx, wager); err != nil {
		return nil, fmt.Errorf("create wager: %w", err)
	}

	metrics.WagersCreated.WithLabelValues(string(wager.AssetKind)).Inc()
	s.publisher.Publish(events.SubjectWagerCreated, events.WagerEvent{WagerID: wager.ID})
	logrus.WithFields(logrus.Fields{
		"wager_id": wager.ID,
		"maker":    wager.MakerAddress,
		"amount":   wager.Amount,
		"asset":    wager.AssetKind,
	}).Info("Wager created")
	return wager, nil
}

// Take assigns the taker side of an open wager. The underlying
// conditional write guarantees that of two concurrent takers exactly
// one succeeds and the other sees ErrAlreadyTaken.
func (s *WagerService) Take(ctx context.Context, wagerID string, input TakeWagerInput) (*models.Wager, error) {
	choice, err := game.ParseChoice(input.TakerChoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.TakerAddress == "" {
		return nil, fmt.Errorf("%w: taker address is required", ErrInvalidInput)
	}
	if input.FundingSignature == "" {
		return nil, fmt.Errorf("%w: taker funding signature is required", ErrInvalidInput)
	}

	sealed, err := s.codec.SealChoice(choice)
	if err != nil {
		return nil, fmt.Errorf("seal taker choice: %w", err)
	}

	err = s.wagers.Take(ctx, wagerID, repository.TakerFields{
		Address:   input.TakerAddress,
		Signature: input.FundingSignature,
		ChoiceEnc: sealed,
	})
	if errors.Is(err, repository.ErrAlreadyTaken) {
		metrics.TakeConflicts.Inc()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	metrics.WagersTaken.Inc()
	s.publisher.Publish(events.SubjectWagerTaken, events.WagerEvent{WagerID: wagerID})
	logrus.WithFields(logrus.Fields{
		"wager_id": wagerID,
		"taker":    input.TakerAddress,
	}).Info("Wager taken")
	return s.wagers.GetByID(ctx, wagerID)
}

// Get returns one wager by id.
func (s *WagerService) Get(ctx context.Context, wagerID string) (*models.Wager, error) {
	return s.wagers.GetByID(ctx, wagerID)
}

// ListByStatus lists wagers in one lifecycle state, newest first.
func (s *WagerService) ListByStatus(ctx context.Context, status models.WagerStatus, limit int) ([]*models.Wager, error) {
	return s.wagers.ListByStatus(ctx, status, limit)
}

// ListByAddress lists wagers the address participates in.
func (s *WagerService) ListByAddress(ctx context.Context, address string, limit int) ([]*models.Wager, error) {
	return s.wagers.ListByAddress(ctx, address, limit)
}
