package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rps-backend/internal/commitment"
	"rps-backend/internal/game"
	"rps-backend/internal/ledger"
	"rps-backend/internal/models"
	"rps-backend/internal/repository"
)

var (
	// ErrProvisioning is returned when a fresh escrow account could not
	// be persisted. The wager must not be treated as funded until
	// CreateEscrow succeeds.
	ErrProvisioning = errors.New("escrow provisioning failed")

	// ErrSecretCorrupted is returned when the custodial secret cannot
	// be unsealed. This is a data-integrity failure and never worth
	// retrying.
	ErrSecretCorrupted = errors.New("custodial secret corrupted")
)

const (
	defaultConfirmInterval = 5 * time.Second
	defaultConfirmTimeout  = 2 * time.Minute
)

// Custodian manages single-use escrow accounts: it provisions one per
// wager and executes the single outbound payout once resolution
// completes.
type Custodian struct {
	ledger   ledger.Client
	accounts repository.EscrowAccountRepository
	codec    *commitment.Codec // keyed with the escrow-secret subkey

	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

// NewCustodian wires a custodian. codec must be built from the
// escrow-secret subkey, not the choice-commitment one.
func NewCustodian(ledgerClient ledger.Client, accounts repository.EscrowAccountRepository, codec *commitment.Codec) *Custodian {
	return &Custodian{
		ledger:          ledgerClient,
		accounts:        accounts,
		codec:           codec,
		confirmInterval: defaultConfirmInterval,
		confirmTimeout:  defaultConfirmTimeout,
	}
}

// SetConfirmation overrides the payout confirmation poll interval and
// timeout.
func (c *Custodian) SetConfirmation(interval, timeout time.Duration) {
	c.confirmInterval = interval
	c.confirmTimeout = timeout
}

// CreateEscrow generates a fresh keypair, seals the private material
// and persists the account. The address is never reused across wagers.
func (c *Custodian) CreateEscrow(ctx context.Context) (*models.EscrowAccount, error) {
	keypair, err := c.ledger.CreateAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create address: %v", ErrProvisioning, err)
	}

	sealed, err := c.codec.Seal(keypair.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: seal secret: %v", ErrProvisioning, err)
	}

	account := &models.EscrowAccount{
		ID:              uuid.NewString(),
		Address:         keypair.Address,
		EncryptedSecret: sealed,
	}
	if err := c.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: persist account: %v", ErrProvisioning, err)
	}

	logrus.WithFields(logrus.Fields{
		"escrow_id": account.ID,
		"address":   account.Address,
	}).Info("Escrow account provisioned")
	return account, nil
}

// share is one leg of a payout plan.
type share struct {
	to     string
	amount *big.Int
}

// payoutLeg is one transfer of a payout plan plus its progress.
// signature is recorded at submission, confirmed once the ledger
// reports the transfer terminal.
type payoutLeg struct {
	share
	signature string
	confirmed bool
}

// PayoutPlan is the concrete transfer schedule for one wager's payout.
// Leg amounts are fixed from the balance observed at planning time, so
// re-executing a plan after a mid-plan failure resumes the outstanding
// legs instead of re-splitting a partially drained escrow.
type PayoutPlan struct {
	wagerID string
	from    ledger.Keypair
	payer   Payer
	legs    []payoutLeg
}

// PlanPayout unseals the wager's custodial secret, reads the observed
// balance of the relevant asset and splits it according to the payout
// rule. The observed balance is authoritative: fees and deposit timing
// can make it diverge from the expected stake total.
func (c *Custodian) PlanPayout(ctx context.Context, wager *models.Wager, rule game.PayoutRule) (*PayoutPlan, error) {
	if wager.TakerAddress == nil {
		return nil, fmt.Errorf("wager %s has no taker, nothing to pay out", wager.ID)
	}

	account, err := c.accounts.GetByAddress(ctx, wager.EscrowAddress)
	if err != nil {
		return nil, fmt.Errorf("load escrow account %s: %w", wager.EscrowAddress, err)
	}

	secret, err := c.codec.Open(account.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretCorrupted, err)
	}

	payer := c.payerFor(wager)
	balance, err := payer.Balance(ctx, wager.EscrowAddress)
	if err != nil {
		return nil, fmt.Errorf("query escrow balance: %w", err)
	}
	fee, err := payer.Fee(ctx)
	if err != nil {
		return nil, fmt.Errorf("estimate fee: %w", err)
	}

	shares, err := splitBalance(rule, balance, fee, wager.MakerAddress, *wager.TakerAddress)
	if err != nil {
		return nil, err
	}

	plan := &PayoutPlan{
		wagerID: wager.ID,
		from:    ledger.Keypair{Address: wager.EscrowAddress, Secret: secret},
		payer:   payer,
	}
	for _, s := range shares {
		plan.legs = append(plan.legs, payoutLeg{share: s})
	}
	return plan, nil
}

// ExecutePayout runs the plan's outstanding legs in order. Confirmed
// legs are skipped, and a leg that was submitted but not yet confirmed
// is re-polled under its recorded signature rather than resubmitted.
func (c *Custodian) ExecutePayout(ctx context.Context, plan *PayoutPlan) (string, error) {
	for i := range plan.legs {
		leg := &plan.legs[i]
		if leg.confirmed {
			continue
		}

		if leg.signature == "" {
			signature, err := plan.payer.Transfer(ctx, plan.from, leg.to, leg.amount)
			if err != nil {
				return "", fmt.Errorf("submit payout transfer: %w", err)
			}
			leg.signature = signature
		}

		if err := ledger.WaitForConfirmation(ctx, c.ledger, leg.signature, c.confirmInterval, c.confirmTimeout); err != nil {
			return "", fmt.Errorf("confirm payout transfer: %w", err)
		}
		leg.confirmed = true

		logrus.WithFields(logrus.Fields{
			"wager_id":  plan.wagerID,
			"to":        leg.to,
			"amount":    leg.amount.String(),
			"signature": leg.signature,
		}).Info("Payout transfer confirmed")
	}

	signatures := make([]string, 0, len(plan.legs))
	for _, leg := range plan.legs {
		signatures = append(signatures, leg.signature)
	}
	return strings.Join(signatures, ","), nil
}

// Payout plans and executes in one call, for payouts that need no
// cross-attempt resumption.
func (c *Custodian) Payout(ctx context.Context, wager *models.Wager, rule game.PayoutRule) (string, error) {
	plan, err := c.PlanPayout(ctx, wager, rule)
	if err != nil {
		return "", err
	}
	return c.ExecutePayout(ctx, plan)
}

// splitBalance turns the observed balance into concrete transfer legs.
// Every planned leg reserves one fee from the balance before splitting.
func splitBalance(rule game.PayoutRule, balance, fee *big.Int, makerAddress, takerAddress string) ([]share, error) {
	legs := int64(1)
	if rule == game.RuleSplit {
		legs = 2
	}
	transferable := new(big.Int).Sub(balance, new(big.Int).Mul(fee, big.NewInt(legs)))
	if transferable.Sign() <= 0 {
		return nil, fmt.Errorf("insufficient escrow balance %s to cover transfer and fees", balance)
	}

	switch rule {
	case game.RulePayMaker:
		return []share{{to: makerAddress, amount: transferable}}, nil
	case game.RulePayTaker:
		return []share{{to: takerAddress, amount: transferable}}, nil
	case game.RuleSplit:
		half := new(big.Int).Div(transferable, big.NewInt(2))
		rest := new(big.Int).Sub(transferable, half)
		// Maker gets the floor half, the odd unit goes to the taker.
		return []share{{to: makerAddress, amount: half}, {to: takerAddress, amount: rest}}, nil
	}
	return nil, fmt.Errorf("invalid payout rule %q", rule)
}

func (c *Custodian) payerFor(wager *models.Wager) Payer {
	if wager.AssetKind == models.AssetKindToken {
		return &tokenPayer{client: c.ledger, mint: wager.TokenMint}
	}
	return &nativePayer{client: c.ledger}
}
