package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-backend/internal/commitment"
	"rps-backend/internal/escrow"
	"rps-backend/internal/game"
	"rps-backend/internal/ledger"
	"rps-backend/internal/models"
	"rps-backend/internal/repository"
)

type fixture struct {
	wagers    *repository.MemoryWagerRepository
	accounts  *repository.MemoryEscrowAccountRepository
	client    *ledger.FakeClient
	custodian *escrow.Custodian
	executor  *DisbursementExecutor
	wagerSvc  *WagerService
	resolver  *ResolverService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	choiceKey, err := commitment.DeriveKey("test-secret", "choice-commitment")
	require.NoError(t, err)
	choiceCodec, err := commitment.NewCodec(choiceKey)
	require.NoError(t, err)

	escrowKey, err := commitment.DeriveKey("test-secret", "escrow-secret")
	require.NoError(t, err)
	escrowCodec, err := commitment.NewCodec(escrowKey)
	require.NoError(t, err)

	f := &fixture{
		wagers:   repository.NewMemoryWagerRepository(),
		accounts: repository.NewMemoryEscrowAccountRepository(),
		client:   ledger.NewFakeClient(),
	}
	f.custodian = escrow.NewCustodian(f.client, f.accounts, escrowCodec)
	f.custodian.SetConfirmation(time.Millisecond, time.Second)
	f.executor = NewDisbursementExecutor(f.custodian)
	f.executor.SetRetryPolicy(3, time.Millisecond)
	f.wagerSvc = NewWagerService(f.wagers, choiceCodec, f.custodian, nil)
	f.resolver = NewResolverService(f.wagers, choiceCodec, f.executor, nil)
	return f
}

// takenWager creates a funded, taken wager ready for resolution. Both
// stakes arrive as separate deposits of `stake` base units each.
func (f *fixture) takenWager(t *testing.T, makerChoice, takerChoice game.Choice, stake int64) *models.Wager {
	t.Helper()
	ctx := context.Background()

	account, err := f.wagerSvc.CreateEscrow(ctx)
	require.NoError(t, err)

	wager, err := f.wagerSvc.Create(ctx, CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      string(makerChoice),
		Amount:           "1.0",
		FundingSignature: "maker-funding-sig",
		EscrowAddress:    account.Address,
	})
	require.NoError(t, err)
	f.client.Fund(account.Address, "", big.NewInt(stake))

	_, err = f.wagerSvc.Take(ctx, wager.ID, TakeWagerInput{
		TakerAddress:     "taker-addr",
		TakerChoice:      string(takerChoice),
		FundingSignature: "taker-funding-sig",
	})
	require.NoError(t, err)
	f.client.Fund(account.Address, "", big.NewInt(stake))

	return wager
}

func TestDecideNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Decide(context.Background(), "no-such-wager")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDecideBeforeTakenIsNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.wagerSvc.CreateEscrow(ctx)
	require.NoError(t, err)
	wager, err := f.wagerSvc.Create(ctx, CreateWagerInput{
		MakerAddress:     "maker-addr",
		MakerChoice:      "Rock",
		Amount:           "1.0",
		FundingSignature: "sig",
		EscrowAddress:    account.Address,
	})
	require.NoError(t, err)

	_, err = f.resolver.Decide(ctx, wager.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEndToEndMakerWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.SetFee(big.NewInt(5))

	wager := f.takenWager(t, game.ChoiceRock, game.ChoiceScissors, 1000)

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, "maker-addr", decision.Winner)
	assert.Equal(t, game.RulePayMaker, decision.Rule)

	require.NoError(t, f.resolver.Complete(ctx, decision))

	require.Len(t, f.client.Transfers, 1)
	assert.Equal(t, "maker-addr", f.client.Transfers[0].ToAddress)
	assert.Equal(t, "1995", f.client.Transfers[0].Amount.String(), "full escrowed balance minus fee")

	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WinnerAddress)
	assert.Equal(t, "maker-addr", *stored.WinnerAddress)
	require.NotNil(t, stored.PayoutSignature)
	assert.Equal(t, models.WagerStatusResolved, stored.Status())
}

func TestTakerWinsReversedPair(t *testing.T) {
	f := newFixture(t)
	wager := f.takenWager(t, game.ChoiceScissors, game.ChoiceRock, 500)

	decision, err := f.resolver.Decide(context.Background(), wager.ID)
	require.NoError(t, err)
	assert.Equal(t, "taker-addr", decision.Winner)
	assert.Equal(t, game.RulePayTaker, decision.Rule)
}

func TestDrawSplitsEscrowedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Odd total: 2001 base units in escrow.
	wager := f.takenWager(t, game.ChoicePaper, game.ChoicePaper, 1000)
	f.client.Fund(wager.EscrowAddress, "", big.NewInt(1))

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, game.DrawWinner, decision.Winner)
	assert.Equal(t, game.RuleSplit, decision.Rule)

	require.NoError(t, f.resolver.Complete(ctx, decision))

	require.Len(t, f.client.Transfers, 2)
	assert.Equal(t, "maker-addr", f.client.Transfers[0].ToAddress)
	assert.Equal(t, "1000", f.client.Transfers[0].Amount.String())
	assert.Equal(t, "taker-addr", f.client.Transfers[1].ToAddress)
	assert.Equal(t, "1001", f.client.Transfers[1].Amount.String())

	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraw())
}

func TestDecideIsIdempotentAfterResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoicePaper, game.ChoiceRock, 1000)

	first, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	require.NoError(t, f.resolver.Complete(ctx, first))

	for i := 0; i < 2; i++ {
		again, err := f.resolver.Decide(ctx, wager.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Winner, again.Winner)
		assert.Equal(t, first.Rule, again.Rule)
	}

	// State has not been touched by the repeated decides.
	require.Len(t, f.client.Transfers, 1)
}

func TestConcurrentCompleteAtMostOnePayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoiceScissors, game.ChoicePaper, 1000)

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.resolver.Complete(ctx, decision)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err, "duplicate completion is treated as success")
	}
	assert.Len(t, f.client.Transfers, 1, "exactly one payout transfer")
}

func TestRepeatedCompleteIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoiceRock, game.ChoicePaper, 1000)

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	require.NoError(t, f.resolver.Complete(ctx, decision))
	require.NoError(t, f.resolver.Complete(ctx, decision))

	assert.Len(t, f.client.Transfers, 1)
}

func TestCompleteRejectsMismatchedDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoiceRock, game.ChoiceScissors, 1000)

	err := f.resolver.Complete(ctx, &Decision{
		WagerID: wager.ID,
		Winner:  "taker-addr",
		Rule:    game.RulePayMaker,
	})
	assert.Error(t, err)
	assert.Empty(t, f.client.Transfers)
}

func TestCompleteRejectsForgedDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Maker's Rock beats the taker's Scissors; the losing taker posts an
	// internally consistent decision naming themselves the winner.
	wager := f.takenWager(t, game.ChoiceRock, game.ChoiceScissors, 1000)

	err := f.resolver.Complete(ctx, &Decision{
		WagerID: wager.ID,
		Winner:  "taker-addr",
		Rule:    game.RulePayTaker,
	})
	assert.ErrorIs(t, err, ErrDecisionMismatch)
	assert.Empty(t, f.client.Transfers, "forged decision must not move funds")

	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.WinnerAddress)

	// The outcome derived from the commitments still completes normally.
	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	require.NoError(t, f.resolver.Complete(ctx, decision))
	require.Len(t, f.client.Transfers, 1)
	assert.Equal(t, "maker-addr", f.client.Transfers[0].ToAddress)
}

func TestDrawSplitResumesAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 2000 units in escrow. Leg one (maker's half) confirms, leg two
	// fails once; the retry must pay only the outstanding leg instead of
	// re-splitting the half-drained balance.
	wager := f.takenWager(t, game.ChoicePaper, game.ChoicePaper, 1000)
	f.client.SubmitErrs = []error{
		nil,
		errors.New("node unavailable"),
	}

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	require.NoError(t, f.resolver.Complete(ctx, decision))

	require.Len(t, f.client.Transfers, 2)
	assert.Equal(t, "maker-addr", f.client.Transfers[0].ToAddress)
	assert.Equal(t, "1000", f.client.Transfers[0].Amount.String())
	assert.Equal(t, "taker-addr", f.client.Transfers[1].ToAddress)
	assert.Equal(t, "1000", f.client.Transfers[1].Amount.String(), "second leg keeps its planned share")

	remaining, err := f.client.GetBalance(ctx, wager.EscrowAddress, "")
	require.NoError(t, err)
	assert.Equal(t, "0", remaining.String())

	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusResolved, stored.Status())
}

func TestDisbursementRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoiceRock, game.ChoiceScissors, 1000)

	// Two transient submission failures, then success on attempt three.
	f.client.SubmitErrs = []error{
		errors.New("connection reset"),
		errors.New("stale blockhash"),
	}

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)
	require.NoError(t, f.resolver.Complete(ctx, decision))

	require.Len(t, f.client.Transfers, 1)
	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.WinnerAddress)
}

func TestDisbursementExhaustionLeavesWagerRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wager := f.takenWager(t, game.ChoiceRock, game.ChoiceScissors, 1000)

	f.client.SubmitErrs = []error{
		errors.New("node unavailable"),
		errors.New("node unavailable"),
		errors.New("node unavailable"),
	}

	decision, err := f.resolver.Decide(ctx, wager.ID)
	require.NoError(t, err)

	err = f.resolver.Complete(ctx, decision)
	var disbErr *DisbursementError
	require.ErrorAs(t, err, &disbErr)
	assert.Equal(t, 3, disbErr.Attempts)

	// Funds never left escrow, the wager is not finalized, and a later
	// re-invocation with the same decision succeeds.
	stored, err := f.wagerSvc.Get(ctx, wager.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.WinnerAddress)
	assert.Empty(t, f.client.Transfers)

	require.NoError(t, f.resolver.Complete(ctx, decision))
	assert.Len(t, f.client.Transfers, 1)
}

func TestDecideCorruptedCommitment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taker := "taker-addr"
	enc := "garbage-without-separator"
	now := time.Now()
	require.NoError(t, f.wagers.Create(ctx, &models.Wager{
		ID:             "corrupted",
		MakerAddress:   "maker-addr",
		MakerSignature: "sig",
		MakerChoiceEnc: "also-garbage",
		Amount:         "1.0",
		EscrowAddress:  "escrow",
		AssetKind:      models.AssetKindNative,
		TakerAddress:   &taker,
		TakerChoiceEnc: &enc,
		TakenAt:        &now,
	}))

	_, err := f.resolver.Decide(ctx, "corrupted")
	var decodeErr *commitment.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
