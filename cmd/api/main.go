package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"fairplay/internal/cache"
	"fairplay/internal/config"
	"fairplay/internal/database"
	"fairplay/internal/fair"
	"fairplay/internal/fantasy"
	"fairplay/internal/game"
	"fairplay/internal/logging"
	"fairplay/internal/money"
	"fairplay/internal/server"
	"fairplay/internal/settlement"
	"fairplay/internal/wallet"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, err := newFactory(cfg.Game)
	if err != nil {
		log.Fatal().Err(err).Msg("build game engines failed")
	}

	hub := game.NewHub()
	var manager *game.Manager
	if cfg.Game.CrashEnabled {
		engine := game.NewCrashEngine(cfg.Game.CrashHouseEdge, money.Whole(cfg.Game.CrashMaxMultiplier), cfg.Game.CrashGrowthRate)
		factory.RegisterEngine(engine)
		manager = game.NewManager(engine, hub, game.CrashConfig{
			BettingWindow: cfg.Game.CrashBettingWindow,
			TickInterval:  cfg.Game.CrashTickInterval,
			Pause:         cfg.Game.CrashPause,
		})
	}

	health := map[string]server.HealthFunc{}
	var store wallet.Store = wallet.NewMemoryStore()
	var recorder settlement.BetRecorder
	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("database init failed")
		}
		defer db.Close()
		if cfg.Database.Migrate {
			if err := database.RunMigrations(db.DB(), cfg.Database.MigrationsPath); err != nil {
				log.Fatal().Err(err).Msg("migrations failed")
			}
		}
		store = database.NewWalletStore(db.DB())
		recorder = database.NewBetStore(db.DB())
		health["database"] = db.Health
	} else {
		log.Warn().Str("component", "api").Msg("DB_HOST not set, wallets are kept in memory")
	}

	var publisher settlement.Publisher
	if cfg.Redis.Enabled() {
		rc, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis init failed")
		}
		defer rc.Close()
		publisher = rc
		health["redis"] = rc.Health
	}

	svc := settlement.NewService(settlement.Deps{
		Factory:   factory,
		Keyring:   fair.NewKeyring(),
		Table:     game.NewTable(cfg.Game.RoundLockWait),
		Crash:     manager,
		Ledger:    wallet.NewLedger(store),
		Contests:  fantasy.NewRegistry(cfg.Game.ContestEntryFee, cfg.Game.ContestBudget),
		Recorder:  recorder,
		Publisher: publisher,
	}, settlement.Config{
		MinStake:        cfg.Game.MinStake,
		MaxStake:        cfg.Game.MaxStake,
		IdleTimeout:     cfg.Game.RoundIdleTimeout,
		JanitorInterval: cfg.Game.JanitorInterval,
	})

	go hub.Run(ctx)
	if manager != nil {
		go manager.Run(ctx)
	}
	svc.StartJanitor(ctx)

	app := server.New(cfg.Server, svc, hub, health)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info().Str("component", "api").Msg("shutting down")
		if err := app.ShutdownWithTimeout(SHUTDOWN_TIMEOUT); err != nil {
			log.Error().Err(err).Str("component", "api").Msg("shutdown")
		}
	}()

	log.Info().Str("component", "api").Str("addr", cfg.Server.HTTPAddr).
		Strs("games", gameNames(factory)).Msg("http listening")
	if err := app.Listen(cfg.Server.HTTPAddr); err != nil {
		log.Error().Err(err).Str("component", "api").Msg("server stopped")
		stop()
	}
	<-done
}

func newFactory(g config.GameConfig) (*game.GameFactory, error) {
	pt, err := game.LoadPaytable(g.SlotsPaytable)
	if err != nil {
		return nil, err
	}
	f := game.NewGameFactory()
	f.RegisterEngine(game.NewDiceEngine(g.DiceHouseEdge))
	f.RegisterEngine(game.NewMinesEngine(g.MinesHouseEdge))
	f.RegisterEngine(game.NewRouletteEngine())
	f.RegisterEngine(game.NewSlotsEngine(pt))
	f.RegisterEngine(game.NewBlackjackEngine())
	return f, nil
}

func gameNames(f *game.GameFactory) []string {
	types := f.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
