// Package settlement composes the game engines, the crash coordinator, the
// wallet ledger and the contest registry into the public operation surface.
// It moves money when rounds start and end and hands every settled stake to
// the persistence collaborator.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/fantasy"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

const (
	REF_ROUND    = "round"
	REF_CRASH    = "crash_round"
	REF_REFUND   = "refund"
	REF_DEPOSIT  = "deposit"
	REF_WITHDRAW = "withdraw"
	REF_TRANSFER = "transfer"
	REF_CONTEST  = "contest"
)

// Identity is the caller as vouched for by the identity collaborator.
type Identity struct {
	TenantID string
	UserID   string
}

func (id Identity) owner() string { return id.TenantID + "/" + id.UserID }

func (id Identity) wallet(b wallet.Bucket) string { return wallet.ID(id.TenantID, id.UserID, b) }

// IDENTITY_SEPARATOR joins tenant, user and bucket in wallet ids and seed
// owners, so it may not appear inside either part.
const IDENTITY_SEPARATOR = "/"

func (id Identity) valid() error {
	if id.TenantID == "" || id.UserID == "" {
		return apperr.Validation("identity", "tenant and user are required")
	}
	if strings.Contains(id.TenantID, IDENTITY_SEPARATOR) || strings.Contains(id.UserID, IDENTITY_SEPARATOR) {
		return apperr.Validation("identity", "tenant and user may not contain %q", IDENTITY_SEPARATOR)
	}
	return nil
}

type Config struct {
	MinStake        money.Amount
	MaxStake        money.Amount
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
}

type Deps struct {
	Factory   *game.GameFactory
	Keyring   *fair.Keyring
	Table     *game.Table
	Crash     *game.Manager
	Ledger    *wallet.Ledger
	Contests  *fantasy.Registry
	Recorder  BetRecorder
	Publisher Publisher
}

type Service struct {
	factory   *game.GameFactory
	keyring   *fair.Keyring
	table     *game.Table
	crash     *game.Manager
	ledger    *wallet.Ledger
	contests  *fantasy.Registry
	recorder  BetRecorder
	publisher Publisher
	payouts   *payouts
	cfg       Config
	now       func() time.Time
}

// NewService wires the orchestrator and registers it as the crash settler.
func NewService(d Deps, cfg Config) *Service {
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Publisher == nil {
		d.Publisher = NewMemoryPublisher(0)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	s := &Service{
		factory:   d.Factory,
		keyring:   d.Keyring,
		table:     d.Table,
		crash:     d.Crash,
		ledger:    d.Ledger,
		contests:  d.Contests,
		recorder:  d.Recorder,
		publisher: d.Publisher,
		payouts:   newPayouts(),
		cfg:       cfg,
		now:       time.Now,
	}
	if s.crash != nil {
		s.crash.SetSettler(s)
	}
	return s
}

func (s *Service) checkStake(op string, stake money.Amount) error {
	if stake <= 0 {
		return apperr.Validation(op, "stake must be positive")
	}
	if s.cfg.MinStake > 0 && stake < s.cfg.MinStake {
		return apperr.Validation(op, "stake %s below minimum %s", stake, s.cfg.MinStake)
	}
	if s.cfg.MaxStake > 0 && stake > s.cfg.MaxStake {
		return apperr.Validation(op, "stake %s above maximum %s", stake, s.cfg.MaxStake)
	}
	return nil
}

// record hands a settled stake to persistence. Failures are logged; money has
// already moved and stays moved.
func (s *Service) record(ctx context.Context, rec BetRecord) {
	if err := s.recorder.RecordBet(ctx, rec); err != nil {
		log.Error().Err(err).Str("component", "settlement").Str("round_id", rec.RoundID).
			Str("user_id", rec.UserID).Msg("record bet")
	}
}

func (s *Service) publish(ctx context.Context, c fair.Commitment) {
	if err := s.publisher.PublishCommitment(ctx, c); err != nil {
		log.Error().Err(err).Str("component", "settlement").Str("hash", c.ServerSeedHash).Msg("publish commitment")
	}
}

// Commit returns the caller's published seed commitment, creating it on first
// use.
func (s *Service) Commit(ctx context.Context, id Identity, clientSeed string) (fair.Commitment, error) {
	if err := id.valid(); err != nil {
		return fair.Commitment{}, err
	}
	c, err := s.keyring.Commit(id.owner(), clientSeed)
	if err != nil {
		return fair.Commitment{}, err
	}
	s.publish(ctx, c)
	return c, nil
}

// Rotate reveals the caller's active server seed and commits a new one.
func (s *Service) Rotate(ctx context.Context, id Identity, clientSeed string) (revealed, next fair.Commitment, err error) {
	if err := id.valid(); err != nil {
		return fair.Commitment{}, fair.Commitment{}, err
	}
	revealed, next, err = s.keyring.Rotate(id.owner(), clientSeed)
	if err != nil {
		return fair.Commitment{}, fair.Commitment{}, err
	}
	s.publish(ctx, revealed)
	s.publish(ctx, next)
	log.Info().Str("component", "settlement").Str("owner", id.owner()).Str("revealed", revealed.ServerSeedHash).Msg("seed rotated")
	return revealed, next, nil
}

func (s *Service) Commitment(ctx context.Context, hash string) (fair.Commitment, error) {
	return s.publisher.Commitment(ctx, hash)
}

func (s *Service) engine(op string, variant game.GameType) (game.GameEngine, error) {
	e, ok := s.factory.GetEngine(variant)
	if !ok {
		return nil, apperr.Validation(op, "unknown variant %q", variant)
	}
	return e, nil
}

// StartRound debits the stake and opens a round. Single-shot variants settle
// before this returns.
func (s *Service) StartRound(ctx context.Context, id Identity, bucket wallet.Bucket, req game.StartRequest) (game.RoundState, error) {
	const op = "settlement.start"
	if err := id.valid(); err != nil {
		return game.RoundState{}, err
	}
	e, err := s.engine(op, req.Variant)
	if err != nil {
		return game.RoundState{}, err
	}
	if req.Variant == game.GameTypeCrash {
		return game.RoundState{}, apperr.Validation(op, "crash rounds are joined, not started")
	}
	if roulette, ok := e.(*game.RouletteEngine); ok && req.Stake == 0 {
		if req.Stake, err = roulette.TotalStake(req.Roulette); err != nil {
			return game.RoundState{}, err
		}
	}
	if err := s.checkStake(op, req.Stake); err != nil {
		return game.RoundState{}, err
	}
	if req.ClientSeed != "" {
		if err := fair.ValidateClientSeed(req.ClientSeed); err != nil {
			return game.RoundState{}, err
		}
	}
	if err := e.Validate(req); err != nil {
		return game.RoundState{}, err
	}
	if _, ok := s.keyring.Active(id.owner()); !ok {
		return game.RoundState{}, apperr.IllegalState(op, "no published seed commitment; commit one before playing")
	}

	roundID := ulid.Make().String()
	walletID := id.wallet(bucket)
	if _, err := s.ledger.Debit(ctx, walletID, req.Stake, wallet.Ref{Type: REF_ROUND, ID: roundID}); err != nil {
		return game.RoundState{}, err
	}

	round, err := s.open(roundID, e, req, id)
	if err != nil {
		s.refund(ctx, walletID, req.Stake, roundID)
		return game.RoundState{}, err
	}
	round.WalletID = walletID

	log.Debug().Str("component", "settlement").Str("round_id", roundID).Str("variant", string(req.Variant)).
		Str("stake", req.Stake.String()).Msg("round started")

	if round.Done() {
		round.EndedAt = round.StartedAt
		return s.settle(ctx, round)
	}
	s.table.Insert(round)
	return round.State(false), nil
}

func (s *Service) open(roundID string, e game.GameEngine, req game.StartRequest, id Identity) (*game.Round, error) {
	seeds, err := s.keyring.Next(id.owner(), req.ClientSeed)
	if err != nil {
		return nil, err
	}
	m, err := e.NewMachine(req, seeds)
	if err != nil {
		return nil, err
	}
	r := game.NewRound(roundID, req.Variant, seeds, m, s.now())
	r.TenantID, r.UserID = id.TenantID, id.UserID
	return r, nil
}

func (s *Service) refund(ctx context.Context, walletID string, amount money.Amount, roundID string) {
	if _, err := s.ledger.Credit(ctx, walletID, amount, wallet.Ref{Type: REF_REFUND, ID: roundID}); err != nil {
		log.Error().Err(err).Str("component", "settlement").Str("round_id", roundID).Str("wallet_id", walletID).
			Str("amount", amount.String()).Msg("refund failed")
	}
}

// settle pays out a finished round and records it. If the credit fails the
// round stays owed: a repeated action on it or the janitor pays it later.
func (s *Service) settle(ctx context.Context, r *game.Round) (game.RoundState, error) {
	m := r.Machine()
	p := payout{
		key:    roundKey(r.ID),
		wallet: r.WalletID,
		amount: m.Payout(),
		ref:    wallet.Ref{Type: REF_ROUND, ID: r.ID},
		round:  r,
		record: BetRecord{
			RoundID:        r.ID,
			TenantID:       r.TenantID,
			UserID:         r.UserID,
			WalletID:       r.WalletID,
			Variant:        r.Variant,
			Stake:          m.Stake(),
			Payout:         m.Payout(),
			Multiplier:     m.Multiplier(),
			Status:         m.Status(),
			ServerSeedHash: r.Seeds.ServerSeedHash,
			ClientSeed:     r.Seeds.ClientSeed,
			Nonce:          r.Seeds.Nonce,
			SettledAt:      r.EndedAt,
		},
	}
	if err := s.pay(ctx, p); err != nil {
		return game.RoundState{}, err
	}
	return r.State(true), nil
}

func (s *Service) Round(ctx context.Context, id Identity, roundID string) (game.RoundState, error) {
	return s.table.Get(ctx, roundID, id.TenantID, id.UserID)
}

// Act applies a player action. Actions that raise the stake debit the extra
// amount first and refund it if the action is refused. Acting on a finished
// round whose payout is still owed retries the payout.
func (s *Service) Act(ctx context.Context, id Identity, roundID string, a game.Action) (game.RoundState, error) {
	if p, ok := s.payouts.claim(roundKey(roundID), id.TenantID, id.UserID); ok {
		if err := s.pay(ctx, p); err != nil {
			return game.RoundState{}, err
		}
		return p.round.State(true), nil
	}
	fund := func(r *game.Round, extra money.Amount) (func(), error) {
		if _, err := s.ledger.Debit(ctx, r.WalletID, extra, wallet.Ref{Type: REF_ROUND, ID: r.ID}); err != nil {
			return nil, err
		}
		return func() { s.refund(ctx, r.WalletID, extra, r.ID) }, nil
	}
	r, done, err := s.table.Act(ctx, roundID, id.TenantID, id.UserID, a, fund)
	if err != nil {
		return game.RoundState{}, err
	}
	if done {
		return s.settle(ctx, r)
	}
	return r.State(false), nil
}

// SettlementResult is what a cashout returns.
type SettlementResult struct {
	RoundID    string             `json:"round_id"`
	Variant    game.GameType      `json:"variant"`
	Status     game.OutcomeStatus `json:"status"`
	Stake      money.Amount       `json:"stake"`
	Multiplier money.Multiplier   `json:"multiplier"`
	Payout     money.Amount       `json:"payout"`
	SettledAt  time.Time          `json:"settled_at"`
}

// CashOut ends a round at its current multiplier. It serves both session
// rounds held in the table and stakes in the shared crash round.
func (s *Service) CashOut(ctx context.Context, id Identity, roundID string) (SettlementResult, error) {
	st, err := s.Act(ctx, id, roundID, game.Action{Type: game.ActionCashout})
	if err == nil {
		res := SettlementResult{
			RoundID:    st.RoundID,
			Variant:    st.Variant,
			Status:     st.Status,
			Stake:      st.Stake,
			Multiplier: st.Multiplier,
			Payout:     st.Payout,
		}
		if st.EndedAt != nil {
			res.SettledAt = *st.EndedAt
		}
		return res, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) || s.crash == nil {
		return SettlementResult{}, err
	}
	return s.CrashCashOut(ctx, id, roundID)
}

// Expire settles rounds idle for longer than the configured timeout as
// losses.
func (s *Service) Expire(ctx context.Context) int {
	expired := s.table.Expire(s.cfg.IdleTimeout)
	for _, r := range expired {
		s.settle(ctx, r)
	}
	return len(expired)
}

// StartJanitor expires idle rounds and retries owed payouts every interval
// until ctx ends.
func (s *Service) StartJanitor(ctx context.Context) {
	interval := s.cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Expire(ctx); n > 0 {
					log.Info().Str("component", "settlement").Int("expired", n).Msg("janitor sweep")
				}
				if s.payouts.len() > 0 {
					n := s.RetryPayouts(ctx)
					log.Info().Str("component", "settlement").Int("paid", n).Int("pending", s.payouts.len()).Msg("payout retry")
				}
			}
		}
	}()
}

// VerifyResult reports a fairness check.
type VerifyResult struct {
	Valid           bool    `json:"valid"`
	Result          float64 `json:"result"`
	CommitmentValid *bool   `json:"commitment_valid,omitempty"`
}

// VerifyFairness recomputes a variant's scalar result and compares it with
// the claim. When a hash is given the seed is also checked against it.
func (s *Service) VerifyFairness(variant game.GameType, seeds fair.SeedPair, claimed float64) (VerifyResult, error) {
	const op = "fair.verify"
	if seeds.Nonce < 0 {
		return VerifyResult{}, apperr.Validation(op, "nonce must not be negative")
	}
	if seeds.ServerSeed == "" {
		return VerifyResult{}, apperr.Validation(op, "server seed is required")
	}
	e, err := s.engine(op, variant)
	if err != nil {
		return VerifyResult{}, err
	}
	v, ok := e.(game.Verifier)
	if !ok {
		return VerifyResult{}, apperr.Validation(op, "%s has no single result; use replay", variant)
	}
	res := VerifyResult{
		Valid:  fair.Verify(seeds, claimed, v.Tolerance(), v.Result),
		Result: v.Result(seeds),
	}
	if seeds.ServerSeedHash != "" {
		ok := fair.VerifyCommitment(seeds.ServerSeed, seeds.ServerSeedHash)
		res.CommitmentValid = &ok
		res.Valid = res.Valid && ok
	}
	return res, nil
}

// Replay returns everything the seeds determine for a variant.
func (s *Service) Replay(variant game.GameType, seeds fair.SeedPair) (any, error) {
	const op = "fair.replay"
	if seeds.Nonce < 0 || seeds.ServerSeed == "" {
		return nil, apperr.Validation(op, "server seed and a non-negative nonce are required")
	}
	e, err := s.engine(op, variant)
	if err != nil {
		return nil, err
	}
	return e.Replay(seeds), nil
}

func (s *Service) Engine(variant game.GameType) (game.GameEngine, bool) {
	return s.factory.GetEngine(variant)
}

// Games lists the registered variants.
func (s *Service) Games() []game.GameType {
	return s.factory.Types()
}
