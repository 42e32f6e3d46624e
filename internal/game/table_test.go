package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

func minesRoundFor(id string, mines []int) *Round {
	r := NewRound(id, GameTypeMines, fair.SeedPair{ServerSeedHash: "h"}, newMinesRound(100, mines, minesEdge), time.Now())
	r.TenantID, r.UserID = "t1", "u1"
	return r
}

func TestTable_ActAndSettle(t *testing.T) {
	ctx := context.Background()
	table := NewTable(0)
	table.Insert(minesRoundFor("r1", []int{0}))

	r, done, err := table.Act(ctx, "r1", "t1", "u1", Action{Type: ActionReveal, Position: 5}, nil)
	if err != nil || done {
		t.Fatalf("reveal: done=%v err=%v", done, err)
	}
	if r.Machine().Multiplier() <= money.One {
		t.Errorf("multiplier = %s", r.Machine().Multiplier())
	}

	if _, _, err := table.Act(ctx, "r1", "t1", "other", Action{Type: ActionCashout}, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign user: err = %v, want not found", err)
	}

	r, done, err = table.Act(ctx, "r1", "t1", "u1", Action{Type: ActionCashout}, nil)
	if err != nil || !done {
		t.Fatalf("cashout: done=%v err=%v", done, err)
	}
	if r.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
	if table.Len() != 0 {
		t.Errorf("table still holds %d rounds", table.Len())
	}

	if _, _, err := table.Act(ctx, "r1", "t1", "u1", Action{Type: ActionReveal, Position: 6}, nil); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("act after settle: err = %v, want illegal state", err)
	}
	if _, _, err := table.Act(ctx, "nope", "t1", "u1", Action{Type: ActionReveal}, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown round: err = %v, want not found", err)
	}
}

func TestTable_StateRedactsUntilDone(t *testing.T) {
	ctx := context.Background()
	table := NewTable(0)
	table.Insert(minesRoundFor("r1", []int{0, 1}))

	st, err := table.Get(ctx, "r1", "t1", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Detail.(MinesView).MinePositions != nil || st.EndedAt != nil {
		t.Error("in-progress state leaked mines or end time")
	}
}

func TestTable_SerializesActions(t *testing.T) {
	ctx := context.Background()
	table := NewTable(time.Second)
	table.Insert(minesRoundFor("r1", []int{0}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, illegal := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := table.Act(ctx, "r1", "t1", "u1", Action{Type: ActionReveal, Position: 3}, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrIllegalState):
				illegal++
			}
		}()
	}
	wg.Wait()
	if ok != 1 || illegal != 19 {
		t.Errorf("ok=%d illegal=%d, want exactly one reveal to land", ok, illegal)
	}
}

func TestTable_BusyRoundConflicts(t *testing.T) {
	table := NewTable(20 * time.Millisecond)
	table.Insert(minesRoundFor("r1", []int{0}))

	s, _ := table.lookup("test", "r1")
	s.lock <- struct{}{}
	defer release(s)

	_, _, err := table.Act(context.Background(), "r1", "t1", "u1", Action{Type: ActionReveal, Position: 3}, nil)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestTable_RaiseFundsAndUndo(t *testing.T) {
	ctx := context.Background()
	table := NewTable(0)
	bj := NewRound("b1", GameTypeBlackjack, fair.SeedPair{}, newBlackjackRound(100, stacked(card(5), card(10), card(6), card(7), card(10))), time.Now())
	bj.TenantID, bj.UserID = "t1", "u1"
	table.Insert(bj)

	t.Run("funding failure leaves round untouched", func(t *testing.T) {
		fund := func(*Round, money.Amount) (func(), error) {
			return nil, apperr.InsufficientFunds("wallet.debit", "no funds")
		}
		if _, _, err := table.Act(ctx, "b1", "t1", "u1", Action{Type: ActionDouble}, fund); !errors.Is(err, apperr.ErrInsufficientFunds) {
			t.Fatalf("err = %v", err)
		}
		if bj.Machine().Stake() != 100 || bj.Machine().Phase() != PhasePlayerTurn {
			t.Error("round mutated after failed funding")
		}
	})

	t.Run("double debits the base stake", func(t *testing.T) {
		var funded money.Amount
		fund := func(_ *Round, extra money.Amount) (func(), error) {
			funded = extra
			return func() { t.Error("undo called on success") }, nil
		}
		r, done, err := table.Act(ctx, "b1", "t1", "u1", Action{Type: ActionDouble}, fund)
		if err != nil || !done {
			t.Fatalf("double: done=%v err=%v", done, err)
		}
		if funded != 100 || r.Machine().Payout() != 400 {
			t.Errorf("funded %s payout %s", funded, r.Machine().Payout())
		}
	})
}

func TestTable_ExpireIdle(t *testing.T) {
	table := NewTable(0)
	base := time.Unix(1700000000, 0)
	table.now = func() time.Time { return base }

	stale := minesRoundFor("old", []int{0})
	stale.lastSeen = base.Add(-time.Hour)
	fresh := minesRoundFor("new", []int{0})
	fresh.lastSeen = base
	table.Insert(stale)
	table.Insert(fresh)

	expired := table.Expire(30 * time.Minute)
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expired = %v", expired)
	}
	m := expired[0].Machine()
	if m.Phase() != PhaseExpired || m.Status() != StatusExpired || m.Payout() != 0 {
		t.Errorf("expired round: phase %s status %s payout %s", m.Phase(), m.Status(), m.Payout())
	}
	if table.Len() != 1 {
		t.Errorf("table holds %d rounds, want 1", table.Len())
	}
}
