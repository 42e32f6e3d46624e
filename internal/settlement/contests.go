package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/fantasy"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

func (s *Service) CreateContest(spec fantasy.ContestSpec) (fantasy.ContestView, error) {
	c, err := s.contests.Create(spec)
	if err != nil {
		return fantasy.ContestView{}, err
	}
	log.Info().Str("component", "settlement").Str("contest_id", c.ID()).Str("name", spec.Name).Msg("contest created")
	return c.View(), nil
}

func (s *Service) Contest(id string) (fantasy.ContestView, error) {
	c, err := s.contests.Get(id)
	if err != nil {
		return fantasy.ContestView{}, err
	}
	return c.View(), nil
}

func (s *Service) Contests() []fantasy.ContestView {
	return s.contests.List()
}

// EnterContest accepts a roster and debits the entry fee from the chosen
// bucket.
func (s *Service) EnterContest(ctx context.Context, id Identity, bucket wallet.Bucket, contestID string, req fantasy.RosterRequest) (fantasy.Roster, error) {
	if err := id.valid(); err != nil {
		return fantasy.Roster{}, err
	}
	c, err := s.contests.Get(contestID)
	if err != nil {
		return fantasy.Roster{}, err
	}
	walletID := id.wallet(bucket)
	pay := func(fee money.Amount) error {
		if fee <= 0 {
			return nil
		}
		_, err := s.ledger.Debit(ctx, walletID, fee, wallet.Ref{Type: REF_CONTEST, ID: contestID})
		return err
	}
	return c.Enter(id.TenantID, id.UserID, walletID, req, pay)
}

func (s *Service) GoLive(contestID string) (fantasy.ContestView, error) {
	c, err := s.contests.Get(contestID)
	if err != nil {
		return fantasy.ContestView{}, err
	}
	if err := c.GoLive(); err != nil {
		return fantasy.ContestView{}, err
	}
	return c.View(), nil
}

func (s *Service) RecordStats(contestID string, stats map[string]fantasy.PlayerStats) error {
	c, err := s.contests.Get(contestID)
	if err != nil {
		return err
	}
	return c.RecordStats(stats)
}

func (s *Service) Leaderboard(contestID string) ([]fantasy.Roster, error) {
	c, err := s.contests.Get(contestID)
	if err != nil {
		return nil, err
	}
	return c.Leaderboard(), nil
}

// SettleContest completes a live contest, credits every prize and records one
// bet per roster. Prizes whose credit fails stay owed; settling the contest
// again pays only those.
func (s *Service) SettleContest(ctx context.Context, contestID string) (fantasy.Settlement, error) {
	const op = "settlement.contest.settle"
	c, err := s.contests.Get(contestID)
	if err != nil {
		return fantasy.Settlement{}, err
	}
	var owed []payout
	st, err := c.Settle()
	switch {
	case err == nil:
		settledAt := s.now()
		for _, r := range st.Rosters {
			owed = append(owed, prizePayout(contestID, r, settledAt))
		}
	case errors.Is(err, apperr.ErrIllegalState):
		if owed = s.payouts.claimPrefix(contestKey(contestID, "")); len(owed) == 0 {
			return fantasy.Settlement{}, err
		}
		if st, err = c.Result(); err != nil {
			for _, p := range owed {
				s.payouts.put(p)
			}
			return fantasy.Settlement{}, err
		}
	default:
		return fantasy.Settlement{}, err
	}

	failed := 0
	for _, p := range owed {
		if s.pay(ctx, p) != nil {
			failed++
		}
	}
	if failed > 0 {
		return fantasy.Settlement{}, apperr.Conflict(op, "%d of %d prizes for contest %s are pending", failed, len(owed), contestID)
	}
	log.Info().Str("component", "settlement").Str("contest_id", contestID).Str("pool", st.PrizePool.String()).
		Str("paid", st.Paid.String()).Int("rosters", len(st.Rosters)).Msg("contest settled")
	return st, nil
}

func prizePayout(contestID string, r fantasy.Roster, settledAt time.Time) payout {
	status := game.StatusLost
	if r.Prize > 0 {
		status = game.StatusWon
	}
	return payout{
		key:    contestKey(contestID, r.ID),
		wallet: r.WalletID,
		amount: r.Prize,
		ref:    wallet.Ref{Type: REF_CONTEST, ID: contestID + "/" + r.ID},
		record: BetRecord{
			RoundID:    contestID + "/" + r.ID,
			TenantID:   r.TenantID,
			UserID:     r.UserID,
			WalletID:   r.WalletID,
			Variant:    game.GameTypeFantasyCricket,
			Stake:      r.EntryFee,
			Payout:     r.Prize,
			Multiplier: money.Ratio(r.Prize, r.EntryFee),
			Status:     status,
			SettledAt:  settledAt,
		},
	}
}

// CancelContest voids a contest and refunds every entry fee.
func (s *Service) CancelContest(ctx context.Context, contestID string) (fantasy.ContestView, error) {
	c, err := s.contests.Get(contestID)
	if err != nil {
		return fantasy.ContestView{}, err
	}
	rosters, err := c.Cancel()
	if err != nil {
		return fantasy.ContestView{}, err
	}
	for _, r := range rosters {
		if r.EntryFee > 0 {
			s.refund(ctx, r.WalletID, r.EntryFee, contestID+"/"+r.ID)
		}
	}
	log.Info().Str("component", "settlement").Str("contest_id", contestID).Int("refunded", len(rosters)).Msg("contest cancelled")
	return c.View(), nil
}
