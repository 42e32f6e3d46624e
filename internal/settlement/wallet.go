package settlement

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

type Balance struct {
	WalletID string        `json:"wallet_id"`
	Bucket   wallet.Bucket `json:"bucket"`
	Balance  money.Amount  `json:"balance"`
}

func (s *Service) Balance(ctx context.Context, id Identity, bucket wallet.Bucket) (Balance, error) {
	if err := id.valid(); err != nil {
		return Balance{}, err
	}
	walletID := id.wallet(bucket)
	b, err := s.ledger.Balance(ctx, walletID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: walletID, Bucket: bucket, Balance: b}, nil
}

// Deposit credits funds arriving from outside the platform. ref identifies the
// external payment; one is generated when empty.
func (s *Service) Deposit(ctx context.Context, id Identity, bucket wallet.Bucket, amount money.Amount, ref string) (wallet.Entry, error) {
	if err := id.valid(); err != nil {
		return wallet.Entry{}, err
	}
	if ref == "" {
		ref = ulid.Make().String()
	}
	e, err := s.ledger.Credit(ctx, id.wallet(bucket), amount, wallet.Ref{Type: REF_DEPOSIT, ID: ref})
	if err != nil {
		return wallet.Entry{}, err
	}
	log.Info().Str("component", "wallet").Str("wallet_id", e.WalletID).Str("amount", amount.String()).Msg("deposit")
	return e, nil
}

func (s *Service) Withdraw(ctx context.Context, id Identity, bucket wallet.Bucket, amount money.Amount, ref string) (wallet.Entry, error) {
	if err := id.valid(); err != nil {
		return wallet.Entry{}, err
	}
	if ref == "" {
		ref = ulid.Make().String()
	}
	e, err := s.ledger.Debit(ctx, id.wallet(bucket), amount, wallet.Ref{Type: REF_WITHDRAW, ID: ref})
	if err != nil {
		return wallet.Entry{}, err
	}
	log.Info().Str("component", "wallet").Str("wallet_id", e.WalletID).Str("amount", amount.String()).Msg("withdraw")
	return e, nil
}

func (s *Service) Entries(ctx context.Context, id Identity, bucket wallet.Bucket, limit int) ([]wallet.Entry, error) {
	if err := id.valid(); err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, id.wallet(bucket), limit)
}

type TransferResult struct {
	Debit  wallet.Entry `json:"debit"`
	Credit wallet.Entry `json:"credit"`
}

// Transfer moves funds between two buckets of the caller.
func (s *Service) Transfer(ctx context.Context, id Identity, from, to wallet.Bucket, amount money.Amount) (TransferResult, error) {
	if err := id.valid(); err != nil {
		return TransferResult{}, err
	}
	if from == to {
		return TransferResult{}, apperr.Validation("settlement.transfer", "source and destination are both %s", from)
	}
	d, c, err := s.ledger.Transfer(ctx, id.wallet(from), id.wallet(to), amount, wallet.Ref{Type: REF_TRANSFER, ID: ulid.Make().String()})
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Debit: d, Credit: c}, nil
}
