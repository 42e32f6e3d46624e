package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

// WalletStore keeps balances in Postgres. Atomically takes row locks in
// ascending id order, so concurrent transfers between the same wallets queue
// instead of deadlocking.
type WalletStore struct {
	db *sql.DB
}

func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

type pgTx struct {
	ctx      context.Context
	tx       *sql.Tx
	balances map[string]money.Amount
}

func (t *pgTx) Balance(id string) (money.Amount, error) {
	b, ok := t.balances[id]
	if !ok {
		return 0, fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	return b, nil
}

func (t *pgTx) SetBalance(id string, amount money.Amount) error {
	if _, ok := t.balances[id]; !ok {
		return fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	_, err := t.tx.ExecContext(t.ctx, `UPDATE wallets SET balance = $2, updated_at = now() WHERE id = $1`, id, int64(amount))
	if err != nil {
		return mapError("database.wallet.set", err)
	}
	t.balances[id] = amount
	return nil
}

func (t *pgTx) Append(e wallet.Entry) error {
	_, err := t.tx.ExecContext(t.ctx, `
INSERT INTO ledger_entries (id, wallet_id, kind, amount, balance_before, balance_after, ref_type, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WalletID, string(e.Kind), int64(e.Amount), int64(e.BalanceBefore), int64(e.BalanceAfter),
		e.RefType, e.RefID, e.CreatedAt)
	return mapError("database.wallet.append", err)
}

func (t *pgTx) Applied(id string, kind wallet.EntryKind, ref wallet.Ref) (bool, error) {
	if _, ok := t.balances[id]; !ok {
		return false, fmt.Errorf("wallet %s is not held by this transaction", id)
	}
	var exists bool
	err := t.tx.QueryRowContext(t.ctx, `
SELECT EXISTS (SELECT 1 FROM ledger_entries
WHERE wallet_id = $1 AND kind = $2 AND ref_type = $3 AND ref_id = $4)`,
		id, string(kind), ref.Type, ref.ID).Scan(&exists)
	if err != nil {
		return false, mapError("database.wallet.applied", err)
	}
	return exists, nil
}

func (s *WalletStore) Atomically(ctx context.Context, walletIDs []string, fn func(tx wallet.Tx) error) (err error) {
	ids := append([]string(nil), walletIDs...)
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("database.wallet.begin", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, id := range ids {
		tenantID, userID, bucket, err := wallet.ParseID(id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO wallets (id, tenant_id, user_id, bucket) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`, id, tenantID, userID, string(bucket)); err != nil {
			return mapError("database.wallet.open", err)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, balance FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return mapError("database.wallet.lock", err)
	}
	held := make(map[string]money.Amount, len(ids))
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return mapError("database.wallet.lock", err)
		}
		held[id] = money.Amount(balance)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapError("database.wallet.lock", err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx, balances: held}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("database.wallet.commit", err)
	}
	return nil
}

func (s *WalletStore) Balance(ctx context.Context, id string) (money.Amount, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError("database.wallet.balance", err)
	}
	return money.Amount(balance), nil
}

func (s *WalletStore) Entries(ctx context.Context, id string, limit int) ([]wallet.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, wallet_id, kind, amount, balance_before, balance_after, ref_type, ref_id, created_at
FROM ledger_entries WHERE wallet_id = $1
ORDER BY created_at DESC, id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, mapError("database.wallet.entries", err)
	}
	defer rows.Close()

	out := []wallet.Entry{}
	for rows.Next() {
		var e wallet.Entry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Kind, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, mapError("database.wallet.entries", err)
		}
		out = append(out, e)
	}
	return out, mapError("database.wallet.entries", rows.Err())
}
