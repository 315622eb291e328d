package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-backend/internal/models"
	"rps-backend/internal/repository"
)

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      "Rock",
		Amount:           "2.5",
		FundingSignature: "sig",
		EscrowAddress:    "escrow",
	}

	cases := map[string]func(*CreateWagerInput){
		"invalid choice":    func(in *CreateWagerInput) { in.MakerChoice = "Dynamite" },
		"empty maker":       func(in *CreateWagerInput) { in.MakerAddress = "" },
		"empty funding sig": func(in *CreateWagerInput) { in.FundingSignature = "" },
		"empty escrow":      func(in *CreateWagerInput) { in.EscrowAddress = "" },
		"zero amount":       func(in *CreateWagerInput) { in.Amount = "0" },
		"negative amount":   func(in *CreateWagerInput) { in.Amount = "-1" },
		"garbage amount":    func(in *CreateWagerInput) { in.Amount = "one" },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		_, err := f.wagerSvc.Create(ctx, in)
		assert.Errorf(t, err, "case %q", name)
	}

	wager, err := f.wagerSvc.Create(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, models.AssetKindNative, wager.AssetKind)
	assert.Equal(t, models.WagerStatusOpen, wager.Status())
	assert.NotEqual(t, "Rock", wager.MakerChoiceEnc)
}

func TestCreateTokenWager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wager, err := f.wagerSvc.Create(ctx, CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      "Paper",
		Amount:           "1.5",
		FundingSignature: "sig",
		EscrowAddress:    "escrow",
		TokenMint:        "0xmint",
		TokenDecimals:    6,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssetKindToken, wager.AssetKind)
	assert.Equal(t, "1500000", wager.BaseUnitsAmount)
	assert.Equal(t, "0xmint", wager.AssetID())

	// More precision than the token supports.
	_, err = f.wagerSvc.Create(ctx, CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      "Paper",
		Amount:           "0.0000001",
		FundingSignature: "sig",
		EscrowAddress:    "escrow",
		TokenMint:        "0xmint",
		TokenDecimals:    6,
	})
	assert.Error(t, err)
}

func TestTakeLosingRaceSurfacesAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wager, err := f.wagerSvc.Create(ctx, CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      "Rock",
		Amount:           "1",
		FundingSignature: "sig",
		EscrowAddress:    "escrow",
	})
	require.NoError(t, err)

	taken, err := f.wagerSvc.Take(ctx, wager.ID, TakeWagerInput{
		TakerAddress:     "taker-addr",
		TakerChoice:      "Paper",
		FundingSignature: "taker-sig",
	})
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusTaken, taken.Status())

	_, err = f.wagerSvc.Take(ctx, wager.ID, TakeWagerInput{
		TakerAddress:     "late-taker",
		TakerChoice:      "Scissors",
		FundingSignature: "late-sig",
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyTaken)

	_, err = f.wagerSvc.Take(ctx, "missing", TakeWagerInput{
		TakerAddress:     "taker-addr",
		TakerChoice:      "Paper",
		FundingSignature: "taker-sig",
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
