// Package wallet is the balance ledger. Every mutation runs inside a Store
// transaction holding exclusive access to the wallets it touches and appends
// one Entry per balance change.
package wallet

import (
	"context"
	"strings"
	"time"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
)

type Bucket string

const (
	BucketCash   Bucket = "cash"
	BucketBonus  Bucket = "bonus"
	BucketPoints Bucket = "points"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketCash, BucketBonus, BucketPoints:
		return b, nil
	}
	return "", apperr.Validation("wallet.bucket", "unknown bucket %q", s)
}

// ID names the wallet of one bucket of one user.
func ID(tenantID, userID string, b Bucket) string {
	return tenantID + "/" + userID + "/" + string(b)
}

// ParseID splits a wallet id back into its owner and bucket.
func ParseID(id string) (tenantID, userID string, b Bucket, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", "", "", apperr.Validation("wallet.id", "malformed wallet id %q", id)
	}
	if b, err = ParseBucket(parts[2]); err != nil {
		return "", "", "", err
	}
	return parts[0], parts[1], b, nil
}

type EntryKind string

const (
	KindDebit  EntryKind = "debit"
	KindCredit EntryKind = "credit"
)

// Ref ties a ledger entry to the thing that caused it.
type Ref struct {
	Type string `json:"ref_type"`
	ID   string `json:"ref_id"`
}

// Entry is the append-only audit record of one balance change.
type Entry struct {
	ID            string       `json:"id"`
	WalletID      string       `json:"wallet_id"`
	Kind          EntryKind    `json:"kind"`
	Amount        money.Amount `json:"amount"`
	BalanceBefore money.Amount `json:"balance_before"`
	BalanceAfter  money.Amount `json:"balance_after"`
	RefType       string       `json:"ref_type"`
	RefID         string       `json:"ref_id"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Tx is the view of the locked wallets inside Store.Atomically. Wallets that
// were never written read as zero.
type Tx interface {
	Balance(walletID string) (money.Amount, error)
	SetBalance(walletID string, amount money.Amount) error
	Append(e Entry) error
	// Applied reports whether the wallet already has an entry of kind for
	// ref, counting entries appended earlier in this transaction.
	Applied(walletID string, kind EntryKind, ref Ref) (bool, error)
}

type Store interface {
	// Atomically runs fn with exclusive holds on walletIDs, taken in
	// ascending id order. Nothing fn wrote is kept if it returns an error.
	Atomically(ctx context.Context, walletIDs []string, fn func(tx Tx) error) error
	Balance(ctx context.Context, walletID string) (money.Amount, error)
	// Entries lists a wallet's entries, newest first.
	Entries(ctx context.Context, walletID string, limit int) ([]Entry, error)
}
