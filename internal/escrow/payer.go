package escrow

import (
	"context"
	"math/big"

	"rps-backend/internal/ledger"
)

// Payer settles one asset kind. The custodian's payout logic is written
// once against this interface; native coin and fungible tokens are the
// two implementations.
type Payer interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	Fee(ctx context.Context) (*big.Int, error)
	Transfer(ctx context.Context, from ledger.Keypair, to string, amount *big.Int) (string, error)
}

type nativePayer struct {
	client ledger.Client
}

func (p *nativePayer) Balance(ctx context.Context, address string) (*big.Int, error) {
	return p.client.GetBalance(ctx, address, "")
}

func (p *nativePayer) Fee(ctx context.Context) (*big.Int, error) {
	return p.client.EstimateFee(ctx, "")
}

func (p *nativePayer) Transfer(ctx context.Context, from ledger.Keypair, to string, amount *big.Int) (string, error) {
	return p.client.SubmitTransfer(ctx, ledger.TransferRequest{
		FromAddress: from.Address,
		FromSecret:  from.Secret,
		ToAddress:   to,
		Amount:      amount,
	})
}

type tokenPayer struct {
	client ledger.Client
	mint   string
}

func (p *tokenPayer) Balance(ctx context.Context, address string) (*big.Int, error) {
	return p.client.GetBalance(ctx, address, p.mint)
}

func (p *tokenPayer) Fee(ctx context.Context) (*big.Int, error) {
	return p.client.EstimateFee(ctx, p.mint)
}

func (p *tokenPayer) Transfer(ctx context.Context, from ledger.Keypair, to string, amount *big.Int) (string, error) {
	return p.client.SubmitTransfer(ctx, ledger.TransferRequest{
		FromAddress: from.Address,
		FromSecret:  from.Secret,
		ToAddress:   to,
		Amount:      amount,
		AssetID:     p.mint,
	})
}
