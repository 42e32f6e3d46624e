package game

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

func newTestDice() *DiceEngine {
	return NewDiceEngine(decimal.RequireFromString("0.01"))
}

func TestDiceEngine_CalculateMultiplier(t *testing.T) {
	engine := newTestDice()

	tests := []struct {
		name     string
		target   string
		rollOver bool
		want     money.Multiplier
	}{
		{"roll over 50", "50", true, 19800},
		{"roll under 50", "50", false, 19800},
		{"roll under 25", "25", false, 39600},
		{"roll over 90", "90", true, 99000},
		{"roll under 1", "1", false, 990000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, err := engine.CalculateMultiplier(DiceParams{Target: decimal.RequireFromString(tt.target), RollOver: tt.rollOver})
			if err != nil {
				t.Fatalf("CalculateMultiplier: %v", err)
			}
			if m != tt.want {
				t.Errorf("multiplier = %s, want %s", m, tt.want)
			}
		})
	}
}

func TestDiceEngine_Validate(t *testing.T) {
	engine := newTestDice()

	invalid := []DiceParams{
		{Target: decimal.RequireFromString("99.5"), RollOver: false},
		{Target: decimal.RequireFromString("0.5"), RollOver: false},
		{Target: decimal.RequireFromString("99.5"), RollOver: true},
		{Target: decimal.RequireFromString("50.123"), RollOver: true},
	}
	for _, p := range invalid {
		err := engine.Validate(StartRequest{Variant: GameTypeDice, Stake: 100, Dice: p})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("target %s over=%v: err = %v, want validation", p.Target, p.RollOver, err)
		}
	}
}

func TestDiceEngine_RollOverScenario(t *testing.T) {
	engine := newTestDice()
	req := StartRequest{
		Variant: GameTypeDice,
		Stake:   money.MustAmount("10.00"),
		Dice:    DiceParams{Target: decimal.NewFromInt(50), RollOver: true},
	}

	r, err := engine.resolve(req, 7320)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.Status() != StatusWon {
		t.Fatalf("status = %s, want won", r.Status())
	}
	if r.Multiplier() != 19800 {
		t.Errorf("multiplier = %s, want 1.98x", r.Multiplier())
	}
	if r.Payout() != money.MustAmount("19.80") {
		t.Errorf("payout = %s, want 19.80", r.Payout())
	}
	if err := r.Act(Action{Type: ActionHit}); !errors.Is(err, apperr.ErrIllegalState) {
		t.Errorf("Act after settle: err = %v, want illegal state", err)
	}
}

func TestDiceEngine_LossPaysNothing(t *testing.T) {
	engine := newTestDice()
	req := StartRequest{Stake: 500, Dice: DiceParams{Target: decimal.NewFromInt(50), RollOver: true}}

	// the boundary roll itself loses
	for _, roll := range []int64{0, 4999, 5000} {
		r, err := engine.resolve(req, roll)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if r.Status() != StatusLost || r.Payout() != 0 {
			t.Errorf("roll %d: status %s payout %s, want lost 0", roll, r.Status(), r.Payout())
		}
	}
}

func TestDiceEngine_Deterministic(t *testing.T) {
	engine := newTestDice()
	seeds := fair.SeedPair{ServerSeed: "server", ClientSeed: "client", Nonce: 3}

	first := engine.Result(seeds)
	if second := engine.Result(seeds); first != second {
		t.Errorf("Result not deterministic: %v != %v", first, second)
	}
	if first < 0 || first >= 100 {
		t.Errorf("roll %v outside [0,100)", first)
	}
	if !fair.Verify(seeds, first, engine.Tolerance(), engine.Result) {
		t.Error("Verify rejected the engine's own result")
	}
	if fair.Verify(seeds, first+0.05, engine.Tolerance(), engine.Result) {
		t.Error("Verify accepted a roll five steps off")
	}
}
