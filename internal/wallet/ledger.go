package wallet

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
)

type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) Balance(ctx context.Context, walletID string) (money.Amount, error) {
	return l.store.Balance(ctx, walletID)
}

func (l *Ledger) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return l.store.Entries(ctx, walletID, limit)
}

func requirePositive(op string, amount money.Amount) error {
	if amount <= 0 {
		return apperr.Validation(op, "amount must be positive, got %s", amount)
	}
	return nil
}

func (l *Ledger) Debit(ctx context.Context, walletID string, amount money.Amount, ref Ref) (Entry, error) {
	if err := requirePositive("wallet.debit", amount); err != nil {
		return Entry{}, err
	}
	var e Entry
	err := l.store.Atomically(ctx, []string{walletID}, func(tx Tx) error {
		var err error
		e, err = l.apply(tx, walletID, KindDebit, amount, ref)
		return err
	})
	return e, err
}

func (l *Ledger) Credit(ctx context.Context, walletID string, amount money.Amount, ref Ref) (Entry, error) {
	if err := requirePositive("wallet.credit", amount); err != nil {
		return Entry{}, err
	}
	var e Entry
	err := l.store.Atomically(ctx, []string{walletID}, func(tx Tx) error {
		var err error
		e, err = l.apply(tx, walletID, KindCredit, amount, ref)
		return err
	})
	return e, err
}

// CreditOnce credits amount unless the wallet already holds a credit for ref.
// fresh is false when an earlier call already paid it, in which case the
// returned entry is empty.
func (l *Ledger) CreditOnce(ctx context.Context, walletID string, amount money.Amount, ref Ref) (e Entry, fresh bool, err error) {
	if err := requirePositive("wallet.credit", amount); err != nil {
		return Entry{}, false, err
	}
	err = l.store.Atomically(ctx, []string{walletID}, func(tx Tx) error {
		done, err := tx.Applied(walletID, KindCredit, ref)
		if err != nil || done {
			return err
		}
		e, err = l.apply(tx, walletID, KindCredit, amount, ref)
		fresh = err == nil
		return err
	})
	if err != nil {
		return Entry{}, false, err
	}
	return e, fresh, nil
}

// Transfer moves amount between two wallets as one unit. If the credit leg
// fails the debit leg is discarded with it.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount money.Amount, ref Ref) (debit, credit Entry, err error) {
	if err := requirePositive("wallet.transfer", amount); err != nil {
		return Entry{}, Entry{}, err
	}
	if from == to {
		return Entry{}, Entry{}, apperr.Validation("wallet.transfer", "source and destination are the same wallet")
	}
	err = l.store.Atomically(ctx, []string{from, to}, func(tx Tx) error {
		var err error
		if debit, err = l.apply(tx, from, KindDebit, amount, ref); err != nil {
			return err
		}
		credit, err = l.apply(tx, to, KindCredit, amount, ref)
		return err
	})
	if err != nil {
		return Entry{}, Entry{}, err
	}
	log.Debug().Str("component", "wallet").Str("from", from).Str("to", to).Str("amount", amount.String()).Msg("transfer")
	return debit, credit, nil
}

func (l *Ledger) apply(tx Tx, walletID string, kind EntryKind, amount money.Amount, ref Ref) (Entry, error) {
	before, err := tx.Balance(walletID)
	if err != nil {
		return Entry{}, err
	}

	var after money.Amount
	switch kind {
	case KindDebit:
		if before < amount {
			return Entry{}, apperr.InsufficientFunds("wallet.debit", "wallet %s holds %s, needs %s", walletID, before, amount)
		}
		after = before - amount
	case KindCredit:
		if after, err = before.Add(amount); err != nil {
			return Entry{}, apperr.Validation("wallet.credit", "%v", err)
		}
	}

	if err := tx.SetBalance(walletID, after); err != nil {
		return Entry{}, err
	}
	now := l.now()
	e := Entry{
		ID:            NewEntryID(now),
		WalletID:      walletID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		RefType:       ref.Type,
		RefID:         ref.ID,
		CreatedAt:     now,
	}
	if err := tx.Append(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
