package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"fairplay/internal/fair"
	"fairplay/internal/game"
	"fairplay/internal/money"
)

var simStake = money.MustAmount("1.00")

type simConfig struct {
	variant     game.GameType
	rounds      int
	workers     int
	target      decimal.Decimal
	rollOver    bool
	mines       int
	autoCashout money.Multiplier
	progress    bool
}

// Report summarizes the return per unit staked across all simulated rounds.
type Report struct {
	Variant game.GameType
	Rounds  int
	Staked  money.Amount
	Paid    money.Amount
	RTP     float64
	Std     float64
	CILo    float64
	CIHi    float64
	Wins    int
	Elapsed time.Duration
}

// player plays one round from seeds and returns its payout.
type player func(seeds fair.SeedPair) (money.Amount, error)

func newPlayer(f *game.GameFactory, cfg simConfig) (player, error) {
	if cfg.variant == game.GameTypeCrash {
		e, ok := f.GetEngine(game.GameTypeCrash)
		if !ok {
			return nil, fmt.Errorf("crash engine not registered")
		}
		crash := e.(*game.CrashEngine)
		if cfg.autoCashout < game.CRASH_MIN_AUTO_CASHOUT {
			return nil, fmt.Errorf("auto cashout must be at least %s", game.CRASH_MIN_AUTO_CASHOUT)
		}
		return func(seeds fair.SeedPair) (money.Amount, error) {
			if crash.CrashPoint(seeds) >= cfg.autoCashout {
				return money.Payout(simStake, cfg.autoCashout), nil
			}
			return 0, nil
		}, nil
	}

	engine, ok := f.GetEngine(cfg.variant)
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", cfg.variant)
	}
	req := game.StartRequest{Variant: cfg.variant, Stake: simStake}
	switch cfg.variant {
	case game.GameTypeDice:
		req.Dice = game.DiceParams{Target: cfg.target, RollOver: cfg.rollOver}
	case game.GameTypeMines:
		req.Mines = game.MinesParams{Mines: cfg.mines}
	case game.GameTypeRoulette:
		req.Roulette = game.RouletteParams{Bets: []game.RouletteBet{{Type: "red", Amount: simStake}}}
	case game.GameTypeSlots:
	default:
		return nil, fmt.Errorf("variant %q cannot be simulated", cfg.variant)
	}
	if err := engine.Validate(req); err != nil {
		return nil, err
	}

	return func(seeds fair.SeedPair) (money.Amount, error) {
		m, err := engine.NewMachine(req, seeds)
		if err != nil {
			return 0, err
		}
		if cfg.variant == game.GameTypeMines {
			if err := m.Act(game.Action{Type: game.ActionReveal, Position: 0}); err != nil {
				return 0, err
			}
			if !m.Phase().Terminal() {
				if err := m.Act(game.Action{Type: game.ActionCashout}); err != nil {
					return 0, err
				}
			}
		}
		return m.Payout(), nil
	}, nil
}

// simulate splits cfg.rounds across workers. Each worker commits one server
// seed and walks the nonce, the way a player session does.
func simulate(ctx context.Context, f *game.GameFactory, cfg simConfig) (Report, error) {
	if cfg.rounds < 1 {
		return Report{}, fmt.Errorf("rounds must be positive")
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	play, err := newPlayer(f, cfg)
	if err != nil {
		return Report{}, err
	}

	returns := make([][]float64, cfg.workers)
	paid := make([]money.Amount, cfg.workers)

	bar := pb.StartNew(cfg.rounds)
	if !cfg.progress {
		bar.SetWriter(io.Discard)
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.workers; w++ {
		n := cfg.rounds / cfg.workers
		if w < cfg.rounds%cfg.workers {
			n++
		}
		g.Go(func() error {
			seeds, err := fair.NewSeedPair(fmt.Sprintf("rtpsim-%d", w), 0)
			if err != nil {
				return err
			}
			out := make([]float64, 0, n)
			for i := 0; i < n; i++ {
				if i%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				seeds.Nonce = int64(i)
				payout, err := play(seeds)
				if err != nil {
					return fmt.Errorf("worker %d nonce %d: %w", w, i, err)
				}
				if paid[w], err = paid[w].Add(payout); err != nil {
					return err
				}
				out = append(out, float64(payout)/float64(simStake))
				bar.Increment()
			}
			returns[w] = out
			return nil
		})
	}
	err = g.Wait()
	elapsed := time.Since(bar.StartTime())
	bar.Finish()
	if err != nil {
		return Report{}, err
	}

	rep := Report{Variant: cfg.variant, Rounds: cfg.rounds, Elapsed: elapsed}
	all := make([]float64, 0, cfg.rounds)
	for w := range returns {
		all = append(all, returns[w]...)
		if rep.Paid, err = rep.Paid.Add(paid[w]); err != nil {
			return Report{}, err
		}
	}
	for _, r := range all {
		if r > 0 {
			rep.Wins++
		}
	}
	rep.Staked = simStake * money.Amount(cfg.rounds)
	rep.RTP, rep.Std = stat.MeanStdDev(all, nil)
	if math.IsNaN(rep.Std) {
		rep.Std = 0
	}
	z := distuv.UnitNormal.Quantile(0.975)
	half := z * rep.Std / math.Sqrt(float64(len(all)))
	rep.CILo, rep.CIHi = rep.RTP-half, rep.RTP+half
	return rep, nil
}
