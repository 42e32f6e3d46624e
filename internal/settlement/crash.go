package settlement

import (
	"context"

	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

// JoinRequest places a stake in the shared crash round.
type JoinRequest struct {
	RoundID     string           `json:"round_id,omitempty"`
	Amount      money.Amount     `json:"amount"`
	AutoCashout money.Multiplier `json:"auto_cashout,omitempty"`
}

func (s *Service) requireCrash(op string) error {
	if s.crash == nil {
		return apperr.IllegalState(op, "crash is not running")
	}
	return nil
}

// JoinCrash debits the stake and adds it to a crash round that is still
// taking bets. The debit runs outside the coordinator lock and is refunded if
// the round stops taking bets in the meantime.
func (s *Service) JoinCrash(ctx context.Context, id Identity, bucket wallet.Bucket, req JoinRequest) (game.CrashSnapshot, error) {
	const op = "settlement.crash.join"
	if err := id.valid(); err != nil {
		return game.CrashSnapshot{}, err
	}
	if err := s.requireCrash(op); err != nil {
		return game.CrashSnapshot{}, err
	}
	if err := s.checkStake(op, req.Amount); err != nil {
		return game.CrashSnapshot{}, err
	}
	walletID := id.wallet(bucket)
	stake := game.PlayerStake{
		UserID:      id.UserID,
		TenantID:    id.TenantID,
		WalletID:    walletID,
		BetAmount:   req.Amount,
		AutoCashout: req.AutoCashout,
	}
	reserve := func(roundID string) (func(), error) {
		if _, err := s.ledger.Debit(ctx, walletID, req.Amount, wallet.Ref{Type: REF_CRASH, ID: roundID}); err != nil {
			return nil, err
		}
		return func() { s.refund(ctx, walletID, req.Amount, roundID) }, nil
	}
	return s.crash.Join(ctx, req.RoundID, stake, reserve)
}

// CrashCashOut settles the caller's stake in a running crash round. If an
// earlier cashout of the stake was taken but its payout is still owed, the
// payout is retried instead.
func (s *Service) CrashCashOut(ctx context.Context, id Identity, roundID string) (SettlementResult, error) {
	const op = "settlement.crash.cashout"
	if err := id.valid(); err != nil {
		return SettlementResult{}, err
	}
	if err := s.requireCrash(op); err != nil {
		return SettlementResult{}, err
	}
	if roundID == "" {
		if snap, ok := s.crash.Current(); ok {
			roundID = snap.RoundID
		}
	}
	if p, ok := s.payouts.claim(crashKey(roundID, id.TenantID, id.UserID), id.TenantID, id.UserID); ok {
		if err := s.pay(ctx, p); err != nil {
			return SettlementResult{}, err
		}
		return p.result(), nil
	}
	res, err := s.crash.CashOut(ctx, roundID, id.TenantID, id.UserID)
	if err != nil {
		return SettlementResult{}, err
	}
	return SettlementResult{
		RoundID:    res.RoundID,
		Variant:    game.GameTypeCrash,
		Status:     res.Status,
		Stake:      res.Stake.BetAmount,
		Multiplier: res.Multiplier,
		Payout:     res.Payout,
		SettledAt:  res.SettledAt,
	}, nil
}

func (s *Service) CrashCurrent() (game.CrashSnapshot, error) {
	if err := s.requireCrash("settlement.crash.current"); err != nil {
		return game.CrashSnapshot{}, err
	}
	snap, ok := s.crash.Current()
	if !ok {
		return game.CrashSnapshot{}, apperr.NotFound("settlement.crash.current", "no crash round open")
	}
	return snap, nil
}

// CrashHistory lists recent crash results, newest first. The published history
// is preferred; the coordinator's own ring is used when it is unavailable.
func (s *Service) CrashHistory(ctx context.Context, n int) ([]game.CrashResult, error) {
	out, err := s.publisher.CrashHistory(ctx, n)
	if err == nil && len(out) > 0 {
		return out, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "settlement").Msg("crash history unavailable, using local ring")
	}
	if s.crash == nil {
		return []game.CrashResult{}, nil
	}
	return s.crash.History(n), nil
}

// CrashOpened publishes the new round's seed commitment.
func (s *Service) CrashOpened(ctx context.Context, snap game.CrashSnapshot) {
	s.publish(ctx, commitmentOf(snap, false))
}

// CrashSettled pays out one crash stake and records it. A payout whose credit
// fails stays owed until a repeated cashout or the janitor lands it.
func (s *Service) CrashSettled(ctx context.Context, cs game.CrashSettlement) error {
	return s.pay(ctx, payout{
		key:    crashKey(cs.RoundID, cs.Stake.TenantID, cs.Stake.UserID),
		wallet: cs.Stake.WalletID,
		amount: cs.Payout,
		ref:    wallet.Ref{Type: REF_CRASH, ID: cs.RoundID},
		record: BetRecord{
			RoundID:        cs.RoundID,
			TenantID:       cs.Stake.TenantID,
			UserID:         cs.Stake.UserID,
			WalletID:       cs.Stake.WalletID,
			Variant:        game.GameTypeCrash,
			Stake:          cs.Stake.BetAmount,
			Payout:         cs.Payout,
			Multiplier:     cs.Multiplier,
			Status:         cs.Status,
			ServerSeedHash: cs.Seeds.ServerSeedHash,
			ClientSeed:     cs.Seeds.ClientSeed,
			Nonce:          cs.Seeds.Nonce,
			SettledAt:      cs.SettledAt,
		},
	})
}

// CrashClosed reveals the crashed round's seed and appends it to the public
// history.
func (s *Service) CrashClosed(ctx context.Context, snap game.CrashSnapshot) {
	s.publish(ctx, commitmentOf(snap, true))
	if err := s.publisher.PushCrashResult(ctx, snap.Result()); err != nil {
		log.Error().Err(err).Str("component", "settlement").Str("round_id", snap.RoundID).Msg("push crash result")
	}
}

// commitmentOf publishes a crash round's seeds under the same shape as player
// seed commitments. The server seed is only included once revealed.
func commitmentOf(snap game.CrashSnapshot, revealed bool) fair.Commitment {
	c := fair.Commitment{
		Owner:          "crash/" + snap.RoundID,
		ServerSeedHash: snap.Fairness.ServerSeedHash,
		ClientSeed:     snap.Fairness.ClientSeed,
		NextNonce:      snap.Fairness.Nonce,
		CreatedAt:      snap.OpenedAt,
	}
	if revealed {
		c.ServerSeed = snap.Fairness.ServerSeed
		c.RevealedAt = snap.CrashedAt
	}
	return c
}
