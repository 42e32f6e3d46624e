package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fairplay/internal/apperr"
	"fairplay/internal/fantasy"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/wallet"
)

func contestSpec() fantasy.ContestSpec {
	var players []fantasy.Player
	add := func(prefix string, role fantasy.Role, n int) {
		for i := 1; i <= n; i++ {
			players = append(players, fantasy.Player{ID: fmt.Sprintf("%s%d", prefix, i), Role: role, Team: "A", Price: 900})
		}
	}
	add("b", fantasy.RoleBatsman, 8)
	add("w", fantasy.RoleBowler, 8)
	add("a", fantasy.RoleAllRounder, 6)
	return fantasy.ContestSpec{Name: "final", Team1: "A", Team2: "B", Players: players}
}

func roster(captain string) fantasy.RosterRequest {
	return fantasy.RosterRequest{
		PlayerIDs:     []string{"b1", "b2", "b3", "b4", "w1", "w2", "w3", "w4", "a1", "a2", "a3"},
		CaptainID:     captain,
		ViceCaptainID: "a1",
	}
}

func TestContest_EntrySettlementAndPrizes(t *testing.T) {
	f := newFixture(t, Config{})
	bob := Identity{TenantID: "t1", UserID: "bob"}
	f.fund(t, alice, "100.00")
	f.fund(t, bob, "100.00")
	ctx := context.Background()

	view, err := f.svc.CreateContest(contestSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.EntryFee != money.MustAmount("10.00") {
		t.Errorf("default entry fee = %s", view.EntryFee)
	}
	if _, err := f.svc.EnterContest(ctx, alice, wallet.BucketCash, view.ID, roster("b1")); err != nil {
		t.Fatalf("alice enter: %v", err)
	}
	if _, err := f.svc.EnterContest(ctx, bob, wallet.BucketCash, view.ID, roster("w1")); err != nil {
		t.Fatalf("bob enter: %v", err)
	}
	if got := f.balance(t, alice); got != money.MustAmount("90.00") {
		t.Errorf("entry fee not debited: %s", got)
	}

	if _, err := f.svc.GoLive(view.ID); err != nil {
		t.Fatalf("live: %v", err)
	}
	if _, err := f.svc.EnterContest(ctx, alice, wallet.BucketCash, view.ID, roster("b1")); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("entry after go-live: got %v", err)
	}
	if err := f.svc.RecordStats(view.ID, map[string]fantasy.PlayerStats{"b1": {Runs: 30}}); err != nil {
		t.Fatalf("stats: %v", err)
	}

	board, err := f.svc.Leaderboard(view.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board[0].UserID != "alice" {
		t.Errorf("leader = %s, want alice", board[0].UserID)
	}

	st, err := f.svc.SettleContest(ctx, view.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if st.PrizePool != money.MustAmount("20.00") || st.Paid != money.MustAmount("13.00") {
		t.Errorf("pool %s paid %s", st.PrizePool, st.Paid)
	}
	if got := f.balance(t, alice); got != money.MustAmount("98.00") {
		t.Errorf("alice balance = %s, want 98.00", got)
	}
	if got := f.balance(t, bob); got != money.MustAmount("95.00") {
		t.Errorf("bob balance = %s, want 95.00", got)
	}

	bets := f.recorder.all()
	if len(bets) != 2 {
		t.Fatalf("recorded %d bets, want 2", len(bets))
	}
	for _, b := range bets {
		if b.Variant != game.GameTypeFantasyCricket || b.Stake != money.MustAmount("10.00") || b.Status != game.StatusWon {
			t.Errorf("unexpected record %+v", b)
		}
	}
	if _, err := f.svc.SettleContest(ctx, view.ID); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("second settle: got %v", err)
	}
}

func TestContest_FailedPrizeIsRetried(t *testing.T) {
	store := &flakyStore{Store: wallet.NewMemoryStore()}
	f := newFixtureWithStore(t, Config{}, store)
	bob := Identity{TenantID: "t1", UserID: "bob"}
	f.fund(t, alice, "100.00")
	f.fund(t, bob, "100.00")
	ctx := context.Background()

	view, err := f.svc.CreateContest(contestSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.EnterContest(ctx, alice, wallet.BucketCash, view.ID, roster("b1"))
	f.svc.EnterContest(ctx, bob, wallet.BucketCash, view.ID, roster("w1"))
	f.svc.GoLive(view.ID)
	f.svc.RecordStats(view.ID, map[string]fantasy.PlayerStats{"b1": {Runs: 30}})

	// the leader's prize is credited first
	store.failNext(1)
	if _, err := f.svc.SettleContest(ctx, view.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("settle with failing credit: got %v, want Conflict", err)
	}
	if got := f.balance(t, alice); got != money.MustAmount("90.00") {
		t.Errorf("alice balance = %s, want 90.00", got)
	}
	if got := f.balance(t, bob); got != money.MustAmount("95.00") {
		t.Errorf("bob balance = %s, want 95.00", got)
	}
	if n := len(f.recorder.all()); n != 1 {
		t.Errorf("recorded %d bets, want 1", n)
	}

	st, err := f.svc.SettleContest(ctx, view.ID)
	if err != nil {
		t.Fatalf("retried settle: %v", err)
	}
	if st.Paid != money.MustAmount("13.00") || len(st.Rosters) != 2 {
		t.Errorf("retried settlement %+v", st)
	}
	if got := f.balance(t, alice); got != money.MustAmount("98.00") {
		t.Errorf("alice balance = %s, want 98.00", got)
	}
	if got := f.balance(t, bob); got != money.MustAmount("95.00") {
		t.Errorf("bob paid twice: %s", got)
	}
	if n := len(f.recorder.all()); n != 2 {
		t.Errorf("recorded %d bets, want 2", n)
	}
	if _, err := f.svc.SettleContest(ctx, view.ID); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("third settle: got %v", err)
	}
}

func TestContest_CancelRefundsEntries(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, alice, "25.00")
	ctx := context.Background()

	view, err := f.svc.CreateContest(contestSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.EnterContest(ctx, alice, wallet.BucketCash, view.ID, roster("b1")); err != nil {
			t.Fatalf("enter %d: %v", i, err)
		}
	}
	if _, err := f.svc.EnterContest(ctx, alice, wallet.BucketCash, view.ID, roster("b1")); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Errorf("third entry: got %v, want InsufficientFunds", err)
	}
	if got := f.balance(t, alice); got != money.MustAmount("5.00") {
		t.Fatalf("balance = %s", got)
	}

	view, err = f.svc.CancelContest(ctx, view.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if view.Status != fantasy.StatusCancelled {
		t.Errorf("status = %s", view.Status)
	}
	if got := f.balance(t, alice); got != money.MustAmount("25.00") {
		t.Errorf("refunded balance = %s, want 25.00", got)
	}
	if _, err := f.svc.Contest("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing contest: got %v", err)
	}
}
