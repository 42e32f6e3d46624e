package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fairplay/internal/money"
)

type account struct {
	mu      sync.Mutex
	balance money.Amount
	entries []Entry
}

// MemoryStore keeps wallets in process memory with one mutex per wallet.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*account)}
}

func (s *MemoryStore) account(id string) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		a = &account{}
		s.accounts[id] = a
	}
	return a
}

type memTx struct {
	held     map[string]*account
	balances map[string]money.Amount
	entries  []Entry
}

func (tx *memTx) Balance(id string) (money.Amount, error) {
	if b, ok := tx.balances[id]; ok {
		return b, nil
	}
	a, ok := tx.held[id]
	if !ok {
		return 0, fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	return a.balance, nil
}

func (tx *memTx) SetBalance(id string, amount money.Amount) error {
	if _, ok := tx.held[id]; !ok {
		return fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	tx.balances[id] = amount
	return nil
}

func (tx *memTx) Append(e Entry) error {
	tx.entries = append(tx.entries, e)
	return nil
}

func (tx *memTx) Applied(id string, kind EntryKind, ref Ref) (bool, error) {
	a, ok := tx.held[id]
	if !ok {
		return false, fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	match := func(e Entry) bool {
		return e.WalletID == id && e.Kind == kind && e.RefType == ref.Type && e.RefID == ref.ID
	}
	for _, e := range tx.entries {
		if match(e) {
			return true, nil
		}
	}
	for _, e := range a.entries {
		if match(e) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Atomically(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	tx := &memTx{held: make(map[string]*account, len(ordered)), balances: make(map[string]money.Amount)}
	for _, id := range ordered {
		if _, dup := tx.held[id]; dup {
			continue
		}
		a := s.account(id)
		a.mu.Lock()
		defer a.mu.Unlock()
		tx.held[id] = a
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}
	for id, b := range tx.balances {
		tx.held[id].balance = b
	}
	for _, e := range tx.entries {
		a := tx.held[e.WalletID]
		a.entries = append(a.entries, e)
	}
	return nil
}

func (s *MemoryStore) lookup(id string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemoryStore) Balance(_ context.Context, id string) (money.Amount, error) {
	a, ok := s.lookup(id)
	if !ok {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, nil
}

func (s *MemoryStore) Entries(_ context.Context, id string, limit int) ([]Entry, error) {
	a, ok := s.lookup(id)
	if !ok {
		return []Entry{}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, 0, min(limit, len(a.entries)))
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}
