package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"rps-backend/internal/models"
)

// MemoryWagerRepository is an in-memory WagerRepository, mostly for
// testing. It mirrors the conditional-write semantics of the gorm
// implementation: Take and Finalize only succeed while the guarded
// field is unset.
type MemoryWagerRepository struct {
	mu     sync.Mutex
	wagers map[string]*models.Wager
}

func NewMemoryWagerRepository() *MemoryWagerRepository {
	return &MemoryWagerRepository{wagers: make(map[string]*models.Wager)}
}

func (m *MemoryWagerRepository) Create(_ context.Context, wager *models.Wager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Stamp timestamps the way gorm's autoCreateTime does, so list
	// ordering behaves the same against both implementations.
	if wager.CreatedAt.IsZero() {
		wager.CreatedAt = time.Now().UTC()
	}
	if wager.UpdatedAt.IsZero() {
		wager.UpdatedAt = wager.CreatedAt
	}
	cp := *wager
	m.wagers[wager.ID] = &cp
	return nil
}

func (m *MemoryWagerRepository) GetByID(_ context.Context, id string) (*models.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wager, ok := m.wagers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wager
	return &cp, nil
}

func (m *MemoryWagerRepository) Take(_ context.Context, id string, taker TakerFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wager, ok := m.wagers[id]
	if !ok {
		return ErrNotFound
	}
	if wager.TakerAddress != nil {
		return ErrAlreadyTaken
	}
	now := time.Now().UTC()
	addr, sig, enc := taker.Address, taker.Signature, taker.ChoiceEnc
	wager.TakerAddress = &addr
	wager.TakerSignature = &sig
	wager.TakerChoiceEnc = &enc
	wager.TakenAt = &now
	return nil
}

func (m *MemoryWagerRepository) Finalize(_ context.Context, id, winner, payoutSignature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wager, ok := m.wagers[id]
	if !ok {
		return ErrNotFound
	}
	if wager.WinnerAddress != nil {
		return ErrAlreadyFinalized
	}
	wager.WinnerAddress = &winner
	wager.PayoutSignature = &payoutSignature
	return nil
}

func (m *MemoryWagerRepository) ListByStatus(_ context.Context, status models.WagerStatus, limit int) ([]*models.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Wager
	for _, wager := range m.wagers {
		if wager.Status() == status {
			cp := *wager
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return clip(out, limit), nil
}

func (m *MemoryWagerRepository) ListByAddress(_ context.Context, address string, limit int) ([]*models.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Wager
	for _, wager := range m.wagers {
		if wager.MakerAddress == address || (wager.TakerAddress != nil && *wager.TakerAddress == address) {
			cp := *wager
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return clip(out, limit), nil
}

func sortNewestFirst(wagers []*models.Wager) {
	sort.Slice(wagers, func(i, j int) bool {
		return wagers[i].CreatedAt.After(wagers[j].CreatedAt)
	})
}

func clip(wagers []*models.Wager, limit int) []*models.Wager {
	if limit > 0 && len(wagers) > limit {
		return wagers[:limit]
	}
	return wagers
}

// MemoryEscrowAccountRepository is an in-memory EscrowAccountRepository
// for testing.
type MemoryEscrowAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.EscrowAccount

	// FailCreate makes the next Create return this error, to exercise
	// provisioning failures.
	FailCreate error
}

func NewMemoryEscrowAccountRepository() *MemoryEscrowAccountRepository {
	return &MemoryEscrowAccountRepository{accounts: make(map[string]*models.EscrowAccount)}
}

func (m *MemoryEscrowAccountRepository) Create(_ context.Context, account *models.EscrowAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		err := m.FailCreate
		m.FailCreate = nil
		return err
	}
	cp := *account
	m.accounts[account.Address] = &cp
	return nil
}

// OverwriteSecret replaces a stored sealed secret, used by tests to
// simulate storage corruption.
func (m *MemoryEscrowAccountRepository) OverwriteSecret(address, sealed string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[address]; ok {
		account.EncryptedSecret = sealed
	}
}

func (m *MemoryEscrowAccountRepository) GetByAddress(_ context.Context, address string) (*models.EscrowAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[address]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	cp := *account
	return &cp, nil
}
