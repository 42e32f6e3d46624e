package game

import (
	"sort"
	"sync"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

type GameType string

const (
	GameTypeDice           GameType = "dice"
	GameTypeMines          GameType = "mines"
	GameTypeBlackjack      GameType = "blackjack"
	GameTypeRoulette       GameType = "roulette"
	GameTypeSlots          GameType = "slots"
	GameTypeCrash          GameType = "crash"
	GameTypeFantasyCricket GameType = "fantasy_cricket"
)

// GameEngine builds round state machines for one variant.
type GameEngine interface {
	GetType() GameType
	// Validate checks a start request without side effects.
	Validate(req StartRequest) error
	NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error)
	// Replay returns everything the seeds determine for this variant.
	Replay(seeds fair.SeedPair) any
}

// Verifier is implemented by engines whose outcome is a single number.
type Verifier interface {
	Result(seeds fair.SeedPair) float64
	Tolerance() float64
}

// Machine is one round's state machine. Implementations are not safe for
// concurrent use; the Table serializes access per round.
type Machine interface {
	Act(a Action) error
	Phase() Phase
	Status() OutcomeStatus
	Stake() money.Amount
	Multiplier() money.Multiplier
	Payout() money.Amount
	View(reveal bool) any
	Expire()
}

// Raiser is implemented by machines where an action puts more money at risk.
// RaiseFor reports the extra stake without mutating the machine.
type Raiser interface {
	RaiseFor(a Action) (money.Amount, error)
}

// outcome carries the fields every machine shares.
type outcome struct {
	phase  Phase
	status OutcomeStatus
	stake  money.Amount
	mult   money.Multiplier
}

func (o *outcome) Phase() Phase                 { return o.phase }
func (o *outcome) Status() OutcomeStatus        { return o.status }
func (o *outcome) Stake() money.Amount          { return o.stake }
func (o *outcome) Multiplier() money.Multiplier { return o.mult }

func (o *outcome) Payout() money.Amount {
	if !o.phase.Terminal() {
		return 0
	}
	return money.Payout(o.stake, o.mult)
}

func (o *outcome) Expire() {
	if o.phase.Terminal() {
		return
	}
	o.phase = PhaseExpired
	o.status = StatusExpired
	o.mult = money.Zero
}

func (o *outcome) finish(phase Phase, status OutcomeStatus, mult money.Multiplier) {
	o.phase = phase
	o.status = status
	o.mult = mult
}

func (o *outcome) requirePhase(op string, want Phase) error {
	if o.phase != want {
		return apperr.IllegalState(op, "round is %s", o.phase)
	}
	return nil
}

func settledOnStart(op string) error {
	return apperr.IllegalState(op, "round settled on start")
}

type GameFactory struct {
	mu      sync.RWMutex
	engines map[GameType]GameEngine
}

func NewGameFactory() *GameFactory {
	return &GameFactory{engines: make(map[GameType]GameEngine)}
}

func (gf *GameFactory) RegisterEngine(engine GameEngine) {
	gf.mu.Lock()
	defer gf.mu.Unlock()
	gf.engines[engine.GetType()] = engine
}

func (gf *GameFactory) GetEngine(gameType GameType) (GameEngine, bool) {
	gf.mu.RLock()
	defer gf.mu.RUnlock()
	engine, exists := gf.engines[gameType]
	return engine, exists
}

func (gf *GameFactory) Types() []GameType {
	gf.mu.RLock()
	defer gf.mu.RUnlock()
	out := make([]GameType, 0, len(gf.engines))
	for t := range gf.engines {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
