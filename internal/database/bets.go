package database

import (
	"context"
	"database/sql"

	"fairplay/internal/settlement"
)

// BetStore persists settled stakes. Recording the same stake twice keeps the
// first row.
type BetStore struct {
	db *sql.DB
}

func NewBetStore(db *sql.DB) *BetStore {
	return &BetStore{db: db}
}

const insertBet = `
INSERT INTO bets (round_id, tenant_id, user_id, wallet_id, variant, stake, payout, multiplier,
                  status, server_seed_hash, client_seed, nonce, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (round_id, tenant_id, user_id) DO NOTHING`

func (s *BetStore) RecordBet(ctx context.Context, b settlement.BetRecord) error {
	_, err := s.db.ExecContext(ctx, insertBet,
		b.RoundID, b.TenantID, b.UserID, b.WalletID, string(b.Variant),
		int64(b.Stake), int64(b.Payout), int64(b.Multiplier), string(b.Status),
		b.ServerSeedHash, b.ClientSeed, b.Nonce, b.SettledAt)
	return mapError("database.record_bet", err)
}

// Bets lists a user's settled stakes, newest first.
func (s *BetStore) Bets(ctx context.Context, tenantID, userID string, limit int) ([]settlement.BetRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT round_id, tenant_id, user_id, wallet_id, variant, stake, payout, multiplier,
       status, server_seed_hash, client_seed, nonce, settled_at
FROM bets WHERE tenant_id = $1 AND user_id = $2
ORDER BY settled_at DESC, round_id DESC LIMIT $3`, tenantID, userID, limit)
	if err != nil {
		return nil, mapError("database.bets", err)
	}
	defer rows.Close()

	var out []settlement.BetRecord
	for rows.Next() {
		var b settlement.BetRecord
		if err := rows.Scan(&b.RoundID, &b.TenantID, &b.UserID, &b.WalletID, &b.Variant, &b.Stake, &b.Payout,
			&b.Multiplier, &b.Status, &b.ServerSeedHash, &b.ClientSeed, &b.Nonce, &b.SettledAt); err != nil {
			return nil, mapError("database.bets", err)
		}
		out = append(out, b)
	}
	return out, mapError("database.bets", rows.Err())
}
