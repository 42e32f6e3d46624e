package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"fairplay/internal/game"
	"fairplay/internal/money"
)

func testFactory(t *testing.T) *game.GameFactory {
	t.Helper()
	pt, err := game.LoadPaytable("")
	if err != nil {
		t.Fatalf("paytable: %v", err)
	}
	edge := decimal.RequireFromString("0.01")
	f := game.NewGameFactory()
	f.RegisterEngine(game.NewDiceEngine(edge))
	f.RegisterEngine(game.NewMinesEngine(decimal.RequireFromString("0.02")))
	f.RegisterEngine(game.NewRouletteEngine())
	f.RegisterEngine(game.NewSlotsEngine(pt))
	f.RegisterEngine(game.NewBlackjackEngine())
	f.RegisterEngine(game.NewCrashEngine(edge, money.Whole(10000), 0.1))
	return f
}

func TestSimulateRTP(t *testing.T) {
	f := testFactory(t)
	tests := []struct {
		name string
		cfg  simConfig
	}{
		{"dice", simConfig{variant: game.GameTypeDice, target: decimal.RequireFromString("50.00"), rollOver: true}},
		{"mines", simConfig{variant: game.GameTypeMines, mines: 3}},
		{"roulette", simConfig{variant: game.GameTypeRoulette}},
		{"crash", simConfig{variant: game.GameTypeCrash, autoCashout: money.Whole(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.rounds = 20000
			tt.cfg.workers = 4
			rep, err := simulate(context.Background(), f, tt.cfg)
			if err != nil {
				t.Fatalf("simulate: %v", err)
			}
			if rep.Rounds != 20000 || rep.Staked != money.MustAmount("20000.00") {
				t.Fatalf("rounds %d staked %s", rep.Rounds, rep.Staked)
			}
			if rep.RTP < 0.9 || rep.RTP > 1.05 {
				t.Errorf("rtp %.4f outside plausible range", rep.RTP)
			}
			if rep.CILo > rep.RTP || rep.CIHi < rep.RTP {
				t.Errorf("interval [%.4f, %.4f] does not contain %.4f", rep.CILo, rep.CIHi, rep.RTP)
			}
			if rep.Wins == 0 {
				t.Error("no winning rounds")
			}
		})
	}
}

func TestSimulateSlots(t *testing.T) {
	rep, err := simulate(context.Background(), testFactory(t), simConfig{variant: game.GameTypeSlots, rounds: 500, workers: 3})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if rep.Rounds != 500 {
		t.Errorf("rounds = %d", rep.Rounds)
	}
}

func TestSimulateRejects(t *testing.T) {
	f := testFactory(t)
	tests := []struct {
		name string
		cfg  simConfig
	}{
		{"no rounds", simConfig{variant: game.GameTypeDice, rounds: 0}},
		{"unknown variant", simConfig{variant: "keno", rounds: 10}},
		{"interactive variant", simConfig{variant: game.GameTypeBlackjack, rounds: 10}},
		{"low auto cashout", simConfig{variant: game.GameTypeCrash, rounds: 10, autoCashout: money.One}},
		{"bad dice target", simConfig{variant: game.GameTypeDice, rounds: 10, target: decimal.RequireFromString("99.99"), rollOver: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := simulate(context.Background(), f, tt.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
