package game

import (
	"errors"
	"testing"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

func card(rank int) Card { return Card{Rank: rank, Suit: "S"} }

// stacked returns a shoe dealt in order, padded with tens.
func stacked(cards ...Card) []Card {
	shoe := append([]Card{}, cards...)
	for len(shoe) < 20 {
		shoe = append(shoe, card(10))
	}
	return shoe
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		hand []Card
		want int
	}{
		{[]Card{card(1), card(13)}, 21},
		{[]Card{card(1), card(1)}, 12},
		{[]Card{card(1), card(9), card(5)}, 15},
		{[]Card{card(12), card(11), card(2)}, 22},
		{[]Card{card(1), card(1), card(1), card(8)}, 21},
	}
	for _, tt := range tests {
		if got := HandValue(tt.hand); got != tt.want {
			t.Errorf("HandValue(%v) = %d, want %d", tt.hand, got, tt.want)
		}
	}
}

func TestBlackjack_NaturalSettlesImmediately(t *testing.T) {
	// deal order is player, dealer, player, dealer
	r := newBlackjackRound(money.MustAmount("10.00"), stacked(card(1), card(5), card(13), card(9)))

	if r.Phase() != PhaseSettled {
		t.Fatalf("phase = %s, want settled", r.Phase())
	}
	if r.Multiplier() != 25000 {
		t.Errorf("multiplier = %s, want 2.5x", r.Multiplier())
	}
	if r.Payout() != money.MustAmount("25.00") {
		t.Errorf("payout = %s, want 25.00", r.Payout())
	}
	for _, a := range []ActionType{ActionHit, ActionStand, ActionDouble} {
		if err := r.Act(Action{Type: a}); !errors.Is(err, apperr.ErrIllegalState) {
			t.Errorf("%s after natural: err = %v, want illegal state", a, err)
		}
	}
}

func TestBlackjack_NaturalPush(t *testing.T) {
	r := newBlackjackRound(100, stacked(card(1), card(1), card(13), card(12)))
	if r.Status() != StatusPush || r.Payout() != 100 {
		t.Errorf("status %s payout %s, want push 1.00", r.Status(), r.Payout())
	}
}

func TestBlackjack_HitBust(t *testing.T) {
	r := newBlackjackRound(100, stacked(card(10), card(7), card(6), card(10), card(9)))
	if err := r.Act(Action{Type: ActionHit}); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if r.Status() != StatusLost || r.Payout() != 0 {
		t.Errorf("status %s payout %s, want lost 0", r.Status(), r.Payout())
	}
}

func TestBlackjack_StandDealerDraws(t *testing.T) {
	// player 19, dealer 6+10 draws a 2 and stands on 18
	r := newBlackjackRound(100, stacked(card(10), card(6), card(9), card(10), card(2)))
	if err := r.Act(Action{Type: ActionStand}); err != nil {
		t.Fatalf("stand: %v", err)
	}
	if r.Status() != StatusWon || r.Multiplier() != money.Whole(2) {
		t.Errorf("status %s multiplier %s, want won 2x", r.Status(), r.Multiplier())
	}
	if v := r.View(true).(BlackjackView); *v.DealerValue != 18 {
		t.Errorf("dealer value = %d, want 18", *v.DealerValue)
	}
}

func TestBlackjack_DoubleDown(t *testing.T) {
	r := newBlackjackRound(100, stacked(card(5), card(10), card(6), card(7), card(10)))

	extra, err := r.RaiseFor(Action{Type: ActionDouble})
	if err != nil || extra != 100 {
		t.Fatalf("RaiseFor = %s, %v; want 1.00", extra, err)
	}
	if err := r.Act(Action{Type: ActionDouble}); err != nil {
		t.Fatalf("double: %v", err)
	}
	if r.Stake() != 200 {
		t.Errorf("stake = %s, want 2.00", r.Stake())
	}
	if r.Phase() != PhaseSettled || r.Status() != StatusWon {
		t.Fatalf("phase %s status %s, want settled won", r.Phase(), r.Status())
	}
	if r.Payout() != 400 {
		t.Errorf("payout = %s, want 4.00", r.Payout())
	}
}

func TestBlackjack_DoubleNeedsTwoCards(t *testing.T) {
	r := newBlackjackRound(100, stacked(card(2), card(10), card(3), card(7), card(2)))
	if err := r.Act(Action{Type: ActionHit}); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if _, err := r.RaiseFor(Action{Type: ActionDouble}); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("RaiseFor with three cards: err = %v", err)
	}
	if err := r.Act(Action{Type: ActionDouble}); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("double with three cards: err = %v", err)
	}
}

func TestBlackjack_HoleCardHidden(t *testing.T) {
	r := newBlackjackRound(100, stacked(card(10), card(9), card(7), card(8)))
	v := r.View(false).(BlackjackView)
	if len(v.DealerHand) != 1 || v.DealerValue != nil {
		t.Errorf("dealer hand leaked: %v", v.DealerHand)
	}
}

func TestBlackjack_ShoeFromSeeds(t *testing.T) {
	seeds := fair.SeedPair{ServerSeed: "s", ClientSeed: "c", Nonce: 1}
	a, b := shuffledShoe(seeds), shuffledShoe(seeds)
	if len(a) != BLACKJACK_DECKS*52 {
		t.Fatalf("shoe has %d cards", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("shoe not deterministic")
		}
	}
}
