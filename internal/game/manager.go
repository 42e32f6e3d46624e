package game

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

const (
	TICK_INTERVAL  = 100 * time.Millisecond
	BETTING_TIME   = 5 * time.Second
	ROUND_PAUSE    = 3 * time.Second
	RECENT_ROUNDS  = 50
	HISTORY_LENGTH = 100
)

type CrashConfig struct {
	BettingWindow time.Duration
	TickInterval  time.Duration
	Pause         time.Duration
}

// CrashSettlement is one stake's final result.
type CrashSettlement struct {
	RoundID    string
	Seeds      fair.SeedPair
	Stake      PlayerStake
	Status     OutcomeStatus
	Multiplier money.Multiplier
	Payout     money.Amount
	SettledAt  time.Time
}

// CrashSettler receives round lifecycle callbacks. Calls are made outside the
// round lock, in the order the events happened. An error from CrashSettled
// means the stake is settled but its payout is still owed.
type CrashSettler interface {
	CrashOpened(ctx context.Context, snap CrashSnapshot)
	CrashSettled(ctx context.Context, s CrashSettlement) error
	CrashClosed(ctx context.Context, snap CrashSnapshot)
}

// ReserveFunc debits a stake for roundID before it joins. The returned undo
// is called if the join is then refused.
type ReserveFunc func(roundID string) (undo func(), err error)

type Broadcaster interface {
	Broadcast(ev Event)
}

type CrashResult struct {
	RoundID    string           `json:"round_id"`
	CrashPoint money.Multiplier `json:"crash_point"`
	ServerSeed string           `json:"server_seed"`
	SeedHash   string           `json:"server_seed_hash"`
	ClientSeed string           `json:"client_seed"`
	Nonce      int64            `json:"nonce"`
	CrashedAt  time.Time        `json:"crashed_at"`
}

// Manager coordinates the shared crash round. Join, CashOut and Tick all take
// the same lock, so a cashout that arrives after the crash was recorded is
// rejected.
type Manager struct {
	engine  *CrashEngine
	hub     Broadcaster
	cfg     CrashConfig
	settler CrashSettler
	now     func() time.Time

	mu      sync.Mutex
	current *CrashRound
	recent  map[string]*CrashRound
	order   []string
	history []CrashResult
	nonce   int64
}

func NewManager(engine *CrashEngine, hub Broadcaster, cfg CrashConfig) *Manager {
	if cfg.BettingWindow <= 0 {
		cfg.BettingWindow = BETTING_TIME
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = TICK_INTERVAL
	}
	if cfg.Pause <= 0 {
		cfg.Pause = ROUND_PAUSE
	}
	return &Manager{
		engine: engine,
		hub:    hub,
		cfg:    cfg,
		now:    time.Now,
		recent: make(map[string]*CrashRound),
	}
}

func (m *Manager) SetSettler(s CrashSettler) {
	m.settler = s
}

func (m *Manager) Engine() *CrashEngine {
	return m.engine
}

func (m *Manager) broadcast(typ string, data any) {
	if m.hub != nil {
		m.hub.Broadcast(Event{Type: typ, Data: data})
	}
}

// OpenRound commits a fresh seed and opens a round for joining. The seed hash
// is public from this moment on.
func (m *Manager) OpenRound(ctx context.Context) (CrashSnapshot, error) {
	clientSeed, _, err := fair.NewSeed()
	if err != nil {
		return CrashSnapshot{}, err
	}

	m.mu.Lock()
	if m.current != nil && m.current.phase != PhaseCrashed {
		m.mu.Unlock()
		return CrashSnapshot{}, apperr.IllegalState("crash.open", "round %s is still %s", m.current.id, m.current.phase)
	}
	m.nonce++
	seeds, err := fair.NewSeedPair(clientSeed, m.nonce)
	if err != nil {
		m.mu.Unlock()
		return CrashSnapshot{}, err
	}
	r := newCrashRound(ulid.Make().String(), m.engine, seeds, m.engine.CrashPoint(seeds), m.now())
	m.current = r
	m.remember(r)
	snap := r.snapshot()
	m.mu.Unlock()

	log.Info().Str("component", "crash").Str("round_id", r.id).Str("commitment", seeds.ServerSeedHash).Msg("round open")
	if m.settler != nil {
		m.settler.CrashOpened(ctx, snap)
	}
	m.broadcast("round_start", map[string]any{
		"round_id":         r.id,
		"server_seed_hash": seeds.ServerSeedHash,
		"time_left":        m.cfg.BettingWindow.Seconds(),
	})
	return snap, nil
}

func (m *Manager) remember(r *CrashRound) {
	m.recent[r.id] = r
	m.order = append(m.order, r.id)
	for len(m.order) > RECENT_ROUNDS {
		delete(m.recent, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) lookup(roundID string) (*CrashRound, error) {
	if roundID == "" {
		if m.current == nil {
			return nil, apperr.NotFound("crash", "no crash round open")
		}
		return m.current, nil
	}
	r, ok := m.recent[roundID]
	if !ok {
		return nil, apperr.NotFound("crash", "round %s", roundID)
	}
	return r, nil
}

// Join adds a stake to a round still in Joining. An empty roundID means the
// current round. reserve runs outside the lock between two validations; if
// the round stopped taking the stake meanwhile, its undo is called.
func (m *Manager) Join(ctx context.Context, roundID string, stake PlayerStake, reserve ReserveFunc) (CrashSnapshot, error) {
	m.mu.Lock()
	r, err := m.lookup(roundID)
	if err == nil {
		err = r.validateJoin(stake)
	}
	m.mu.Unlock()
	if err != nil {
		return CrashSnapshot{}, err
	}

	var undo func()
	if reserve != nil {
		if undo, err = reserve(r.id); err != nil {
			return CrashSnapshot{}, err
		}
	}

	m.mu.Lock()
	if err := r.validateJoin(stake); err != nil {
		m.mu.Unlock()
		if undo != nil {
			undo()
		}
		return CrashSnapshot{}, err
	}
	stake.JoinedAt = m.now()
	r.join(stake)
	snap := r.snapshot()
	m.mu.Unlock()

	m.broadcast("bet_placed", map[string]any{"round_id": r.id, "user_id": stake.UserID, "amount": stake.BetAmount})
	return snap, nil
}

// StartRound moves the current round from Joining to Running at now.
func (m *Manager) StartRound(now time.Time) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return apperr.NotFound("crash.start", "no crash round open")
	}
	r := m.current
	err := r.start(now)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.broadcast("round_running", map[string]any{"round_id": r.id})
	return nil
}

// Tick advances the running round to now. It reports whether the round has
// crashed.
func (m *Manager) Tick(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	r := m.current
	if r == nil || r.phase != PhaseRunning {
		m.mu.Unlock()
		return r != nil && r.phase == PhaseCrashed
	}
	cashed, crashed := r.tick(now)
	var losers []PlayerStake
	var snap CrashSnapshot
	if crashed {
		losers = r.losers()
		snap = r.snapshot()
		m.history = append(m.history, crashResult(r))
		if len(m.history) > HISTORY_LENGTH {
			m.history = m.history[len(m.history)-HISTORY_LENGTH:]
		}
	}
	current := r.current
	m.mu.Unlock()

	for _, s := range cashed {
		m.settle(ctx, r, s, now)
	}
	if !crashed {
		m.broadcast("tick", map[string]any{"round_id": r.id, "multiplier": current})
		return false
	}

	for _, s := range losers {
		m.settle(ctx, r, s, now)
	}
	log.Info().Str("component", "crash").Str("round_id", r.id).Str("crash_point", r.crashPoint.String()).
		Int("losers", len(losers)).Msg("round crashed")
	m.broadcast("crash", map[string]any{
		"round_id":    r.id,
		"multiplier":  r.crashPoint,
		"server_seed": r.seeds.ServerSeed,
	})
	if m.settler != nil {
		m.settler.CrashClosed(ctx, snap)
	}
	return true
}

func (m *Manager) settle(ctx context.Context, r *CrashRound, s PlayerStake, now time.Time) (CrashSettlement, error) {
	res := CrashSettlement{
		RoundID:    r.id,
		Seeds:      r.seeds.Public(),
		Stake:      s,
		Status:     s.Status(),
		Multiplier: s.CashoutMultiplier,
		Payout:     s.Payout,
		SettledAt:  now,
	}
	if s.CashedOut {
		m.broadcast("cashout", map[string]any{
			"round_id":   r.id,
			"user_id":    s.UserID,
			"multiplier": s.CashoutMultiplier,
			"payout":     s.Payout,
		})
	}
	if m.settler != nil {
		if err := m.settler.CrashSettled(ctx, res); err != nil {
			return CrashSettlement{}, err
		}
	}
	return res, nil
}

// CashOut settles a user's stake at the multiplier of the last tick.
func (m *Manager) CashOut(ctx context.Context, roundID, tenantID, userID string) (CrashSettlement, error) {
	m.mu.Lock()
	r, err := m.lookup(roundID)
	if err != nil {
		m.mu.Unlock()
		return CrashSettlement{}, err
	}
	s, err := r.cashOut(tenantID, userID)
	m.mu.Unlock()
	if err != nil {
		return CrashSettlement{}, err
	}

	return m.settle(ctx, r, s, m.now())
}

func crashResult(r *CrashRound) CrashResult {
	return CrashResult{
		RoundID:    r.id,
		CrashPoint: r.crashPoint,
		ServerSeed: r.seeds.ServerSeed,
		SeedHash:   r.seeds.ServerSeedHash,
		ClientSeed: r.seeds.ClientSeed,
		Nonce:      r.seeds.Nonce,
		CrashedAt:  r.crashedAt,
	}
}

func (m *Manager) Current() (CrashSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return CrashSnapshot{}, false
	}
	return m.current.snapshot(), true
}

func (m *Manager) Get(roundID string) (CrashSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(roundID)
	if err != nil {
		return CrashSnapshot{}, err
	}
	return r.snapshot(), nil
}

// History returns up to n recent results, newest first.
func (m *Manager) History(n int) []CrashResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]CrashResult, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Run drives rounds until ctx is cancelled: open, wait out the betting
// window, start, tick until crash, pause.
func (m *Manager) Run(ctx context.Context) {
	log.Info().Str("component", "crash").Msg("game loop started")
	defer log.Info().Str("component", "crash").Msg("game loop stopped")

	for {
		if _, err := m.OpenRound(ctx); err != nil {
			log.Error().Err(err).Str("component", "crash").Msg("open round")
			if !sleep(ctx, m.cfg.Pause) {
				return
			}
			continue
		}
		if !sleep(ctx, m.cfg.BettingWindow) {
			return
		}
		if err := m.StartRound(m.now()); err != nil {
			log.Error().Err(err).Str("component", "crash").Msg("start round")
			continue
		}

		ticker := time.NewTicker(m.cfg.TickInterval)
		crashed := false
		for !crashed {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case now := <-ticker.C:
				crashed = m.Tick(ctx, now)
			}
		}
		ticker.Stop()

		if !sleep(ctx, m.cfg.Pause) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
