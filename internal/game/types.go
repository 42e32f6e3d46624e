package game

import (
	"time"

	"fairplay/internal/fair"
	"fairplay/internal/money"
)

type Phase string

const (
	// single-shot games
	PhaseSettled Phase = "settled"

	// mines
	PhaseInProgress Phase = "in_progress"
	PhaseBusted     Phase = "busted"
	PhaseCashedOut  Phase = "cashed_out"

	// blackjack
	PhasePlayerTurn Phase = "player_turn"
	PhaseDealerTurn Phase = "dealer_turn"

	// crash
	PhaseJoining Phase = "joining"
	PhaseRunning Phase = "running"
	PhaseCrashed Phase = "crashed"

	// forced by the idle janitor
	PhaseExpired Phase = "expired"
)

func (p Phase) Terminal() bool {
	switch p {
	case PhaseSettled, PhaseBusted, PhaseCashedOut, PhaseCrashed, PhaseExpired:
		return true
	}
	return false
}

type OutcomeStatus string

const (
	StatusPending OutcomeStatus = "pending"
	StatusWon     OutcomeStatus = "won"
	StatusLost    OutcomeStatus = "lost"
	StatusPush    OutcomeStatus = "push"
	StatusExpired OutcomeStatus = "expired"
)

type ActionType string

const (
	ActionReveal  ActionType = "reveal"
	ActionCashout ActionType = "cashout"
	ActionHit     ActionType = "hit"
	ActionStand   ActionType = "stand"
	ActionDouble  ActionType = "double"
)

type Action struct {
	Type     ActionType `json:"type"`
	Position int        `json:"position,omitempty"`
}

// StartRequest opens a round. Only the params block of the chosen variant is
// read.
type StartRequest struct {
	Variant    GameType       `json:"variant"`
	Stake      money.Amount   `json:"stake"`
	ClientSeed string         `json:"client_seed,omitempty"`
	Dice       DiceParams     `json:"dice"`
	Mines      MinesParams    `json:"mines"`
	Roulette   RouletteParams `json:"roulette"`
}

// Round is one play of a session-seeded game. It is owned by the Table until
// it terminates and is handed to settlement.
type Round struct {
	ID        string
	Variant   GameType
	TenantID  string
	UserID    string
	WalletID  string
	Seeds     fair.SeedPair
	StartedAt time.Time
	EndedAt   time.Time

	machine  Machine
	lastSeen time.Time
}

func NewRound(id string, variant GameType, seeds fair.SeedPair, m Machine, now time.Time) *Round {
	return &Round{ID: id, Variant: variant, Seeds: seeds, StartedAt: now, machine: m, lastSeen: now}
}

func (r *Round) Machine() Machine { return r.machine }

func (r *Round) Done() bool { return r.machine.Phase().Terminal() }

// State renders the round for a caller. Hidden information stays redacted
// until the round is over or reveal is set.
func (r *Round) State(reveal bool) RoundState {
	m := r.machine
	done := m.Phase().Terminal()
	st := RoundState{
		RoundID:    r.ID,
		Variant:    r.Variant,
		Phase:      m.Phase(),
		Status:     m.Status(),
		Stake:      m.Stake(),
		Multiplier: m.Multiplier(),
		Fairness:   r.Seeds.Public(),
		Detail:     m.View(reveal || done),
		StartedAt:  r.StartedAt,
	}
	if done {
		st.Payout = m.Payout()
		ended := r.EndedAt
		st.EndedAt = &ended
	}
	return st
}

type RoundState struct {
	RoundID    string           `json:"round_id"`
	Variant    GameType         `json:"variant"`
	Phase      Phase            `json:"phase"`
	Status     OutcomeStatus    `json:"status"`
	Stake      money.Amount     `json:"stake"`
	Multiplier money.Multiplier `json:"multiplier"`
	Payout     money.Amount     `json:"payout"`
	Fairness   fair.SeedPair    `json:"fairness"`
	Detail     any              `json:"detail,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
}

// Event is pushed to websocket subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
