package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// TransferStatus is a ledger-reported transfer state.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusConfirmed TransferStatus = "confirmed"
	StatusFailed    TransferStatus = "failed"
)

// Keypair is a freshly generated ledger account. Secret is the raw
// private material; callers must seal it before persisting.
type Keypair struct {
	Address string
	Secret  string
}

// TransferRequest describes one outbound transfer. AssetID empty means
// the native coin.
type TransferRequest struct {
	FromAddress string
	FromSecret  string
	ToAddress   string
	Amount      *big.Int
	AssetID     string
}

// Client abstracts the underlying distributed ledger. Key generation
// must come from a cryptographically secure random source.
type Client interface {
	CreateAddress(ctx context.Context) (Keypair, error)
	GetBalance(ctx context.Context, address, assetID string) (*big.Int, error)
	EstimateFee(ctx context.Context, assetID string) (*big.Int, error)
	SubmitTransfer(ctx context.Context, req TransferRequest) (string, error)
	GetTransferStatus(ctx context.Context, signature string) (TransferStatus, error)
}

// WaitForConfirmation polls the transfer status at a fixed interval
// until it reaches a terminal state or the timeout elapses. Only a
// terminal "confirmed" counts as success.
func WaitForConfirmation(ctx context.Context, client Client, signature string, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.GetTransferStatus(ctx, signature)
		if err == nil {
			switch status {
			case StatusConfirmed:
				return nil
			case StatusFailed:
				return fmt.Errorf("transfer %s failed on ledger", signature)
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for confirmation of %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
