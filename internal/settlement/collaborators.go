package settlement

import (
	"context"
	"sync"
	"time"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/game"
	"fairplay/internal/money"
)

// BetRecord is handed to the persistence collaborator once per settled stake.
type BetRecord struct {
	RoundID        string             `json:"round_id"`
	TenantID       string             `json:"tenant_id"`
	UserID         string             `json:"user_id"`
	WalletID       string             `json:"wallet_id"`
	Variant        game.GameType      `json:"variant"`
	Stake          money.Amount       `json:"stake"`
	Payout         money.Amount       `json:"payout"`
	Multiplier     money.Multiplier   `json:"multiplier"`
	Status         game.OutcomeStatus `json:"status"`
	ServerSeedHash string             `json:"server_seed_hash,omitempty"`
	ClientSeed     string             `json:"client_seed,omitempty"`
	Nonce          int64              `json:"nonce"`
	SettledAt      time.Time          `json:"settled_at"`
}

type BetRecorder interface {
	RecordBet(ctx context.Context, rec BetRecord) error
}

// Publisher makes seed commitments and crash results retrievable by anyone.
type Publisher interface {
	PublishCommitment(ctx context.Context, c fair.Commitment) error
	Commitment(ctx context.Context, hash string) (fair.Commitment, error)
	PushCrashResult(ctx context.Context, r game.CrashResult) error
	CrashHistory(ctx context.Context, n int) ([]game.CrashResult, error)
}

type nopRecorder struct{}

func (nopRecorder) RecordBet(context.Context, BetRecord) error { return nil }

// MemoryPublisher keeps publications in process memory. It stands in for
// Redis when no cache is configured.
type MemoryPublisher struct {
	mu          sync.RWMutex
	commitments map[string]fair.Commitment
	history     []game.CrashResult
	limit       int
}

func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = game.HISTORY_LENGTH
	}
	return &MemoryPublisher{commitments: make(map[string]fair.Commitment), limit: limit}
}

func (p *MemoryPublisher) PublishCommitment(_ context.Context, c fair.Commitment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commitments[c.ServerSeedHash] = c
	return nil
}

func (p *MemoryPublisher) Commitment(_ context.Context, hash string) (fair.Commitment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.commitments[hash]
	if !ok {
		return fair.Commitment{}, apperr.NotFound("fair.commitment", "no commitment %s", hash)
	}
	return c, nil
}

func (p *MemoryPublisher) PushCrashResult(_ context.Context, r game.CrashResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, r)
	if len(p.history) > p.limit {
		p.history = p.history[len(p.history)-p.limit:]
	}
	return nil
}

func (p *MemoryPublisher) CrashHistory(_ context.Context, n int) ([]game.CrashResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n <= 0 || n > len(p.history) {
		n = len(p.history)
	}
	out := make([]game.CrashResult, 0, n)
	for i := len(p.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.history[i])
	}
	return out, nil
}
