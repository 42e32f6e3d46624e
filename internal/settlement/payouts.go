package settlement

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

// payout is money owed for one finished stake and the bet record written
// once it lands.
type payout struct {
	key    string
	wallet string
	amount money.Amount
	ref    wallet.Ref
	record BetRecord
	round  *game.Round
}

func (p payout) result() SettlementResult {
	return SettlementResult{
		RoundID:    p.record.RoundID,
		Variant:    p.record.Variant,
		Status:     p.record.Status,
		Stake:      p.record.Stake,
		Multiplier: p.record.Multiplier,
		Payout:     p.record.Payout,
		SettledAt:  p.record.SettledAt,
	}
}

func roundKey(roundID string) string { return REF_ROUND + ":" + roundID }

func crashKey(roundID, tenantID, userID string) string {
	return REF_CRASH + ":" + roundID + ":" + tenantID + "/" + userID
}

func contestKey(contestID, rosterID string) string {
	return REF_CONTEST + ":" + contestID + ":" + rosterID
}

// payouts holds payouts whose credit failed. Claiming an entry removes it, so
// only one caller retries a payout at a time.
type payouts struct {
	mu      sync.Mutex
	pending map[string]payout
}

func newPayouts() *payouts {
	return &payouts{pending: make(map[string]payout)}
}

func (q *payouts) put(p payout) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[p.key] = p
}

// claim takes the payout under key if it belongs to the given user.
func (q *payouts) claim(key, tenantID, userID string) (payout, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pending[key]
	if !ok || p.record.TenantID != tenantID || p.record.UserID != userID {
		return payout{}, false
	}
	delete(q.pending, key)
	return p, true
}

func (q *payouts) claimPrefix(prefix string) []payout {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []payout
	for key, p := range q.pending {
		if strings.HasPrefix(key, prefix) {
			out = append(out, p)
			delete(q.pending, key)
		}
	}
	return out
}

func (q *payouts) has(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

func (q *payouts) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// pay credits p at most once and records the bet. A failed credit leaves p
// queued and is reported as a conflict the caller may retry.
func (s *Service) pay(ctx context.Context, p payout) error {
	if p.amount > 0 {
		if _, _, err := s.ledger.CreditOnce(ctx, p.wallet, p.amount, p.ref); err != nil {
			s.payouts.put(p)
			log.Error().Err(err).Str("component", "settlement").Str("payout", p.key).Str("wallet_id", p.wallet).
				Str("amount", p.amount.String()).Msg("credit payout failed, queued for retry")
			return apperr.Conflict("settlement.payout", "payout for %s is pending", p.record.RoundID)
		}
	}
	s.record(ctx, p.record)
	return nil
}

// PendingPayouts counts payouts waiting for a retry.
func (s *Service) PendingPayouts() int {
	return s.payouts.len()
}

// RetryPayouts pays every queued payout once more and reports how many
// landed.
func (s *Service) RetryPayouts(ctx context.Context) int {
	paid := 0
	for _, p := range s.payouts.claimPrefix("") {
		if s.pay(ctx, p) == nil {
			paid++
		}
	}
	return paid
}
