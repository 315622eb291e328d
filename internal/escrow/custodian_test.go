package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-backend/internal/commitment"
	"rps-backend/internal/game"
	"rps-backend/internal/ledger"
	"rps-backend/internal/models"
	"rps-backend/internal/repository"
)

func newTestCustodian(t *testing.T) (*Custodian, *ledger.FakeClient, *repository.MemoryEscrowAccountRepository) {
	t.Helper()
	key, err := commitment.DeriveKey("test-secret", "escrow-secret")
	require.NoError(t, err)
	codec, err := commitment.NewCodec(key)
	require.NoError(t, err)

	client := ledger.NewFakeClient()
	accounts := repository.NewMemoryEscrowAccountRepository()
	custodian := NewCustodian(client, accounts, codec)
	custodian.SetConfirmation(time.Millisecond, time.Second)
	return custodian, client, accounts
}

func takenWager(escrowAddress string) *models.Wager {
	taker := "taker-addr"
	return &models.Wager{
		ID:            "w1",
		MakerAddress:  "maker-addr",
		EscrowAddress: escrowAddress,
		AssetKind:     models.AssetKindNative,
		TakerAddress:  &taker,
	}
}

func TestCreateEscrowSealsSecret(t *testing.T) {
	custodian, _, accounts := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, account.Address)

	stored, err := accounts.GetByAddress(ctx, account.Address)
	require.NoError(t, err)
	assert.Contains(t, stored.EncryptedSecret, ":", "secret must be sealed, not raw")

	other, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, account.Address, other.Address, "escrow addresses are single use")
}

func TestCreateEscrowPersistFailure(t *testing.T) {
	custodian, _, accounts := newTestCustodian(t)
	accounts.FailCreate = errors.New("connection refused")

	_, err := custodian.CreateEscrow(context.Background())
	assert.ErrorIs(t, err, ErrProvisioning)
}

func TestPayoutFullBalanceToWinner(t *testing.T) {
	custodian, client, _ := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)

	// Maker and taker stakes arrive as two separate deposits.
	client.Fund(account.Address, "", big.NewInt(1000))
	client.Fund(account.Address, "", big.NewInt(1000))
	client.SetFee(big.NewInt(10))

	signature, err := custodian.Payout(ctx, takenWager(account.Address), game.RulePayMaker)
	require.NoError(t, err)
	assert.NotEmpty(t, signature)

	require.Len(t, client.Transfers, 1)
	assert.Equal(t, "maker-addr", client.Transfers[0].ToAddress)
	assert.Equal(t, big.NewInt(1990), client.Transfers[0].Amount, "observed balance minus fee")

	remaining, err := client.GetBalance(ctx, account.Address, "")
	require.NoError(t, err)
	assert.Zero(t, remaining.Sign())
}

func TestPayoutSplitsOnDraw(t *testing.T) {
	custodian, client, _ := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)
	client.Fund(account.Address, "", big.NewInt(2001))

	signature, err := custodian.Payout(ctx, takenWager(account.Address), game.RuleSplit)
	require.NoError(t, err)
	assert.Contains(t, signature, ",", "split records both transfer signatures")

	require.Len(t, client.Transfers, 2)
	assert.Equal(t, "maker-addr", client.Transfers[0].ToAddress)
	assert.Equal(t, big.NewInt(1000), client.Transfers[0].Amount)
	assert.Equal(t, "taker-addr", client.Transfers[1].ToAddress)
	assert.Equal(t, big.NewInt(1001), client.Transfers[1].Amount, "odd unit goes to the taker")
}

func TestPayoutTokenWagerUsesMint(t *testing.T) {
	custodian, client, _ := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)

	wager := takenWager(account.Address)
	wager.AssetKind = models.AssetKindToken
	wager.TokenMint = "0xmint"
	wager.TokenDecimals = 6
	client.Fund(account.Address, "0xmint", big.NewInt(4_000_000))

	_, err = custodian.Payout(ctx, wager, game.RulePayTaker)
	require.NoError(t, err)

	require.Len(t, client.Transfers, 1)
	assert.Equal(t, "0xmint", client.Transfers[0].AssetID)
	assert.Equal(t, "taker-addr", client.Transfers[0].ToAddress)
	assert.Equal(t, big.NewInt(4_000_000), client.Transfers[0].Amount)
}

func TestPayoutCorruptedSecretIsFatal(t *testing.T) {
	custodian, client, accounts := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)
	client.Fund(account.Address, "", big.NewInt(1000))

	// Overwrite the stored account with a mangled secret.
	accounts.OverwriteSecret(account.Address, "not-a-sealed-value")

	_, err = custodian.Payout(ctx, takenWager(account.Address), game.RulePayMaker)
	assert.ErrorIs(t, err, ErrSecretCorrupted)
	assert.Empty(t, client.Transfers, "no funds may move on a corrupted secret")
}

func TestPayoutInsufficientBalance(t *testing.T) {
	custodian, client, _ := newTestCustodian(t)
	ctx := context.Background()

	account, err := custodian.CreateEscrow(ctx)
	require.NoError(t, err)
	client.Fund(account.Address, "", big.NewInt(5))
	client.SetFee(big.NewInt(10))

	_, err = custodian.Payout(ctx, takenWager(account.Address), game.RulePayMaker)
	assert.Error(t, err)
	assert.Empty(t, client.Transfers)
}
