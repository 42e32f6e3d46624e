// Command rtpsim plays many rounds of one variant offline and reports the
// observed return to player with a 95% confidence interval.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fairplay/internal/config"
	"fairplay/internal/game"
	"fairplay/internal/logging"
	"fairplay/internal/money"
)

func main() {
	var (
		variant  string
		target   string
		auto     string
		cfg      simConfig
		paytable string
	)
	flag.StringVar(&variant, "game", "dice", "variant: dice, mines, roulette, slots, crash")
	flag.IntVar(&cfg.rounds, "rounds", 1000000, "rounds to play")
	flag.IntVar(&cfg.workers, "workers", runtime.NumCPU(), "number of workers")
	flag.StringVar(&target, "target", "50.00", "dice target")
	flag.BoolVar(&cfg.rollOver, "over", true, "dice rolls over the target")
	flag.IntVar(&cfg.mines, "mines", 3, "mines on the board")
	flag.StringVar(&auto, "auto", "2.00", "crash auto cashout multiplier")
	flag.StringVar(&paytable, "paytable", "", "slots paytable YAML, built-in when empty")
	flag.BoolVar(&cfg.progress, "progress", true, "show a progress bar")
	flag.Parse()

	appCfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logging.Init(appCfg.Log)

	cfg.variant = game.GameType(variant)
	if cfg.target, err = decimal.NewFromString(target); err != nil {
		log.Fatal().Err(err).Str("target", target).Msg("bad dice target")
	}
	a, err := decimal.NewFromString(auto)
	if err != nil {
		log.Fatal().Err(err).Str("auto", auto).Msg("bad auto cashout")
	}
	cfg.autoCashout = money.MultiplierFromDecimal(a, 2)

	if paytable == "" {
		paytable = appCfg.Game.SlotsPaytable
	}
	pt, err := game.LoadPaytable(paytable)
	if err != nil {
		log.Fatal().Err(err).Msg("load paytable failed")
	}
	g := appCfg.Game
	f := game.NewGameFactory()
	f.RegisterEngine(game.NewDiceEngine(g.DiceHouseEdge))
	f.RegisterEngine(game.NewMinesEngine(g.MinesHouseEdge))
	f.RegisterEngine(game.NewRouletteEngine())
	f.RegisterEngine(game.NewSlotsEngine(pt))
	f.RegisterEngine(game.NewCrashEngine(g.CrashHouseEdge, money.Whole(g.CrashMaxMultiplier), g.CrashGrowthRate))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := message.NewPrinter(language.English)
	p.Printf("[GAME:%s] [ROUNDS:%d] [WORKERS:%d]\n", cfg.variant, cfg.rounds, cfg.workers)
	rep, err := simulate(ctx, f, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("game", variant).Msg("simulation failed")
	}
	printReport(p, rep)
}

func printReport(p *message.Printer, r Report) {
	sec := r.Elapsed.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	p.Printf("used: %.2f seconds (%d rounds/sec)\n", sec, int(float64(r.Rounds)/sec))
	p.Printf("%-12s %s\n", "Game", r.Variant)
	p.Printf("%-12s %d\n", "Rounds", r.Rounds)
	p.Printf("%-12s %s\n", "Staked", r.Staked)
	p.Printf("%-12s %s\n", "Paid", r.Paid)
	p.Printf("%-12s %d (%.2f%%)\n", "Wins", r.Wins, 100*float64(r.Wins)/float64(r.Rounds))
	p.Printf("%-12s %.4f%%\n", "RTP", 100*r.RTP)
	p.Printf("%-12s [%.4f%%, %.4f%%]\n", "RTP 95% CI", 100*r.CILo, 100*r.CIHi)
	p.Printf("%-12s %.4f\n", "STD", r.Std)
}
