package wallet

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests and local development.
// Each user has its own mutex, so writers for different users never contend.
//
// NOTE: This is not intended for production; use PostgresStore.
type MemoryStore struct {
	rates Rates

	mu       sync.Mutex
	accounts map[string]*memoryAccount

	// journalHook runs after the balance change is staged and before it is
	// committed. A non-nil error aborts the whole apply.
	journalHook func(Transaction) error
}

type memoryAccount struct {
	mu      sync.Mutex
	wallet  Wallet
	journal []Transaction // chronological
}

func NewMemoryStore(rates Rates) *MemoryStore {
	if rates == nil {
		rates = DefaultRates()
	}
	return &MemoryStore{rates: rates, accounts: map[string]*memoryAccount{}}
}

func (s *MemoryStore) lookup(userID string, create bool) *memoryAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok && create {
		a = &memoryAccount{wallet: NewWallet(userID)}
		s.accounts[userID] = a
	}
	return a
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return Wallet{}, unavailable("get wallet", err)
	}
	a := s.lookup(userID, false)
	if a == nil {
		return NewWallet(userID), nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wallet.clone(), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list transactions", err)
	}
	limit = clampLimit(limit)
	a := s.lookup(userID, false)
	if a == nil {
		return []Transaction{}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Transaction, 0, min(limit, len(a.journal)))
	for i := len(a.journal) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.journal[i])
	}
	return out, nil
}

// Journal returns every transaction for the user, oldest first.
func (s *MemoryStore) Journal(ctx context.Context, userID string) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("journal", err)
	}
	a := s.lookup(userID, false)
	if a == nil {
		return []Transaction{}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Transaction, len(a.journal))
	copy(out, a.journal)
	return out, nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, d Delta) (ApplyResult, error) {
	if err := validateDelta(d); err != nil {
		return ApplyResult{}, err
	}
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}

	a := s.lookup(d.UserID, true)
	a.mu.Lock()
	defer a.mu.Unlock()

	if d.Dedup {
		for i := len(a.journal) - 1; i >= 0; i-- {
			t := a.journal[i]
			if t.Kind == d.Kind && t.Source == d.Source && t.ReferenceID == d.ReferenceID {
				return ApplyResult{Wallet: a.wallet.clone(), Transaction: t, Duplicate: true}, nil
			}
		}
	}

	next, tx, err := stageDelta(a.wallet, d, s.rates)
	if err != nil {
		return ApplyResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, unavailable("apply delta", err)
	}
	if s.journalHook != nil {
		if err := s.journalHook(tx); err != nil {
			return ApplyResult{}, unavailable("append transaction", err)
		}
	}

	a.journal = append(a.journal, tx)
	a.wallet = next
	return ApplyResult{Wallet: next.clone(), Transaction: tx}, nil
}

func (s *MemoryStore) SetRole(ctx context.Context, userID string, role MarketingRole, now time.Time) (Wallet, bool, error) {
	if userID == "" {
		return Wallet{}, false, ErrInvalidArgument
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	a := s.lookup(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()

	next, changed, err := stageRole(a.wallet, role, s.rates, now)
	if err != nil {
		return Wallet{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Wallet{}, false, unavailable("set role", err)
	}
	a.wallet = next
	return next.clone(), changed, nil
}
