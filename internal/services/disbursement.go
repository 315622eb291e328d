package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rps-backend/internal/escrow"
	"rps-backend/internal/game"
	"rps-backend/internal/metrics"
	"rps-backend/internal/models"
)

const (
	defaultMaxPayoutAttempts = 3
	defaultPayoutRetryDelay  = 5 * time.Second
)

// DisbursementError reports a payout that exhausted all retry attempts.
// The wager stays in its decided state, so completion can safely be
// re-invoked later without re-deciding the game.
type DisbursementError struct {
	WagerID  string
	Attempts int
	Err      error
}

func (e *DisbursementError) Error() string {
	return fmt.Sprintf("disbursement for wager %s failed after %d attempts: %v", e.WagerID, e.Attempts, e.Err)
}

func (e *DisbursementError) Unwrap() error { return e.Err }

// DisbursementExecutor wraps the custodian payout with bounded,
// sequential retries. Every failure is treated as potentially transient
// except a corrupted custodial secret, which aborts immediately.
type DisbursementExecutor struct {
	custodian   *escrow.Custodian
	maxAttempts int
	retryDelay  time.Duration
}

func NewDisbursementExecutor(custodian *escrow.Custodian) *DisbursementExecutor {
	return &DisbursementExecutor{
		custodian:   custodian,
		maxAttempts: defaultMaxPayoutAttempts,
		retryDelay:  defaultPayoutRetryDelay,
	}
}

// SetRetryPolicy overrides the attempt count and inter-attempt delay.
func (e *DisbursementExecutor) SetRetryPolicy(maxAttempts int, delay time.Duration) {
	if maxAttempts > 0 {
		e.maxAttempts = maxAttempts
	}
	e.retryDelay = delay
}

// Disburse executes the payout for a decided wager. Retries are
// sequential waits, never parallel fan-out, so a flaky ledger can not
// be tricked into duplicate submissions. The payout plan is built once
// and resumed across attempts: a leg that already confirmed is never
// replanned from the drained balance it left behind.
func (e *DisbursementExecutor) Disburse(ctx context.Context, wager *models.Wager, rule game.PayoutRule) (string, error) {
	start := time.Now()
	var lastErr error
	var plan *escrow.PayoutPlan

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.DisbursementAttempts.Inc()

		signature, err := e.attempt(ctx, &plan, wager, rule)
		if err == nil {
			metrics.DisbursementDuration.Observe(time.Since(start).Seconds())
			return signature, nil
		}
		lastErr = err

		if errors.Is(err, escrow.ErrSecretCorrupted) {
			metrics.DisbursementFailures.WithLabelValues("secret_corrupted").Inc()
			logrus.WithError(err).WithField("wager_id", wager.ID).Error("Custodial secret corrupted, aborting payout")
			return "", err
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"wager_id": wager.ID,
			"attempt":  attempt,
			"max":      e.maxAttempts,
		}).Warn("Payout attempt failed")

		if attempt < e.maxAttempts {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("disbursement cancelled: %w", ctx.Err())
			case <-time.After(e.retryDelay):
			}
		}
	}

	metrics.DisbursementFailures.WithLabelValues("retries_exhausted").Inc()
	return "", &DisbursementError{WagerID: wager.ID, Attempts: e.maxAttempts, Err: lastErr}
}

// attempt plans the payout on first use and executes the outstanding
// legs. The plan pointer outlives failed attempts on purpose.
func (e *DisbursementExecutor) attempt(ctx context.Context, plan **escrow.PayoutPlan, wager *models.Wager, rule game.PayoutRule) (string, error) {
	if *plan == nil {
		p, err := e.custodian.PlanPayout(ctx, wager, rule)
		if err != nil {
			return "", err
		}
		*plan = p
	}
	return e.custodian.ExecutePayout(ctx, *plan)
}
