package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
)

// FakeClient is an in-memory ledger for tests. Balances are tracked per
// asset and address, transfers confirm instantly, and SubmitErrs can
// script transient submission failures.
type FakeClient struct {
	mu       sync.Mutex
	balances map[string]map[string]*big.Int // assetID -> address -> balance
	statuses map[string]TransferStatus
	fee      *big.Int

	// SubmitErrs is consumed one error per SubmitTransfer call; a nil
	// entry (or an exhausted slice) lets the call succeed.
	SubmitErrs []error

	// Transfers records every successful submission in order.
	Transfers []TransferRequest
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		balances: make(map[string]map[string]*big.Int),
		statuses: make(map[string]TransferStatus),
		fee:      big.NewInt(0),
	}
}

// SetFee makes native transfers cost a flat fee, deducted from the
// sender on submission.
func (f *FakeClient) SetFee(fee *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fee = new(big.Int).Set(fee)
}

// Fund credits an address, as if a deposit transfer had confirmed.
func (f *FakeClient) Fund(address, assetID string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credit(assetID, address, amount)
}

func (f *FakeClient) CreateAddress(_ context.Context) (Keypair, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return Keypair{}, err
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Keypair{}, err
	}
	return Keypair{
		Address: "0x" + hex.EncodeToString(buf),
		Secret:  hex.EncodeToString(secret),
	}, nil
}

func (f *FakeClient) GetBalance(_ context.Context, address, assetID string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance(assetID, address)), nil
}

func (f *FakeClient) EstimateFee(_ context.Context, assetID string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if assetID != "" {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.fee), nil
}

func (f *FakeClient) SubmitTransfer(_ context.Context, req TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.SubmitErrs) > 0 {
		err := f.SubmitErrs[0]
		f.SubmitErrs = f.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}

	available := f.balance(req.AssetID, req.FromAddress)
	cost := new(big.Int).Set(req.Amount)
	if req.AssetID == "" {
		cost.Add(cost, f.fee)
	}
	if available.Cmp(cost) < 0 {
		return "", fmt.Errorf("insufficient balance: have %s, need %s", available, cost)
	}

	available.Sub(available, cost)
	f.credit(req.AssetID, req.ToAddress, req.Amount)

	signature := fmt.Sprintf("fake-transfer-%d", len(f.Transfers)+1)
	f.statuses[signature] = StatusConfirmed
	f.Transfers = append(f.Transfers, req)
	return signature, nil
}

func (f *FakeClient) GetTransferStatus(_ context.Context, signature string) (TransferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[signature]
	if !ok {
		return StatusPending, nil
	}
	return status, nil
}

func (f *FakeClient) balance(assetID, address string) *big.Int {
	byAddr, ok := f.balances[assetID]
	if !ok {
		byAddr = make(map[string]*big.Int)
		f.balances[assetID] = byAddr
	}
	balance, ok := byAddr[address]
	if !ok {
		balance = big.NewInt(0)
		byAddr[address] = balance
	}
	return balance
}

func (f *FakeClient) credit(assetID, address string, amount *big.Int) {
	f.balance(assetID, address).Add(f.balance(assetID, address), amount)
}
