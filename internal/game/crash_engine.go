package game

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

const (
	CRASH_UNIFORM_DIGITS   = 8
	CRASH_MULTIPLIER_PLACE = 2
	CRASH_MIN_AUTO_CASHOUT = money.Multiplier(10100)
)

type CrashEngine struct {
	houseEdge decimal.Decimal
	max       money.Multiplier
	rate      float64
}

func NewCrashEngine(houseEdge decimal.Decimal, max money.Multiplier, rate float64) *CrashEngine {
	return &CrashEngine{houseEdge: houseEdge, max: max, rate: rate}
}

func (e *CrashEngine) GetType() GameType {
	return GameTypeCrash
}

func (e *CrashEngine) Validate(StartRequest) error {
	return apperr.Validation("crash.start", "crash rounds are joined through the crash coordinator")
}

func (e *CrashEngine) NewMachine(req StartRequest, _ fair.SeedPair) (Machine, error) {
	return nil, e.Validate(req)
}

// CrashPoint maps u = toUniform(derive(seeds)) through
// 99 / (100 - 100u) × (1 - houseEdge), floored at 1.00x and capped at max.
func (e *CrashEngine) CrashPoint(seeds fair.SeedPair) money.Multiplier {
	units := fair.Units(fair.Derive(seeds.ServerSeed, seeds.ClientSeed, seeds.Nonce), CRASH_UNIFORM_DIGITS)
	scale := decimal.New(1, CRASH_UNIFORM_DIGITS)
	u := decimal.NewFromInt(int64(units)).Div(scale)

	denom := decimal.NewFromInt(100).Sub(u.Mul(decimal.NewFromInt(100)))
	point := decimal.NewFromInt(99).Div(denom).Mul(decimal.NewFromInt(1).Sub(e.houseEdge))

	m := money.MultiplierFromDecimal(point, CRASH_MULTIPLIER_PLACE)
	if m < money.One {
		return money.One
	}
	if e.max > 0 && m > e.max {
		return e.max
	}
	return m
}

// MultiplierAt is 1 + (elapsedSeconds × rate)^1.5 truncated to two places.
func (e *CrashEngine) MultiplierAt(elapsed time.Duration) money.Multiplier {
	if elapsed <= 0 {
		return money.One
	}
	f := 1 + math.Pow(elapsed.Seconds()*e.rate, 1.5)
	hundredths := math.Floor(f*100 + 1e-9)
	if hundredths > float64(math.MaxInt64/100) {
		return money.Multiplier(math.MaxInt64)
	}
	return money.Multiplier(int64(hundredths) * 100)
}

func (e *CrashEngine) Result(seeds fair.SeedPair) float64 {
	return e.CrashPoint(seeds).Float64()
}

func (e *CrashEngine) Tolerance() float64 { return 0.01 }

func (e *CrashEngine) Replay(seeds fair.SeedPair) any {
	return map[string]any{"crash_point": e.CrashPoint(seeds)}
}

// PlayerStake is one user's bet in a crash round.
type PlayerStake struct {
	UserID            string           `json:"user_id"`
	TenantID          string           `json:"tenant_id,omitempty"`
	WalletID          string           `json:"wallet_id,omitempty"`
	BetAmount         money.Amount     `json:"bet_amount"`
	AutoCashout       money.Multiplier `json:"auto_cashout,omitempty"`
	CashedOut         bool             `json:"cashed_out"`
	CashoutMultiplier money.Multiplier `json:"cashout_multiplier,omitempty"`
	Payout            money.Amount     `json:"payout"`
	JoinedAt          time.Time        `json:"joined_at"`
}

func (s PlayerStake) Status() OutcomeStatus {
	switch {
	case !s.CashedOut:
		return StatusLost
	case s.CashoutMultiplier == money.One:
		return StatusPush
	}
	return StatusWon
}

type CrashSnapshot struct {
	RoundID    string           `json:"round_id"`
	Phase      Phase            `json:"phase"`
	Current    money.Multiplier `json:"multiplier"`
	CrashPoint money.Multiplier `json:"crash_point,omitempty"`
	Fairness   fair.SeedPair    `json:"fairness"`
	Stakes     []PlayerStake    `json:"stakes"`
	OpenedAt   time.Time        `json:"opened_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	CrashedAt  *time.Time       `json:"crashed_at,omitempty"`
}

// CrashRound is the state machine of one shared crash round. It is not safe
// for concurrent use; the Manager holds its lock around every call.
type CrashRound struct {
	id         string
	engine     *CrashEngine
	seeds      fair.SeedPair
	crashPoint money.Multiplier
	phase      Phase
	current    money.Multiplier
	stakes     []*PlayerStake
	byUser     map[string]*PlayerStake
	openedAt   time.Time
	startedAt  time.Time
	crashedAt  time.Time
}

func newCrashRound(id string, engine *CrashEngine, seeds fair.SeedPair, crashPoint money.Multiplier, now time.Time) *CrashRound {
	return &CrashRound{
		id:         id,
		engine:     engine,
		seeds:      seeds,
		crashPoint: crashPoint,
		phase:      PhaseJoining,
		byUser:     make(map[string]*PlayerStake),
		openedAt:   now,
	}
}

func (r *CrashRound) ID() string   { return r.id }
func (r *CrashRound) Phase() Phase { return r.phase }

func (r *CrashRound) validateJoin(s PlayerStake) error {
	if r.phase != PhaseJoining {
		return apperr.IllegalState("crash.join", "round %s is %s", r.id, r.phase)
	}
	if s.BetAmount <= 0 {
		return apperr.Validation("crash.join", "bet amount must be positive")
	}
	if s.AutoCashout != 0 && s.AutoCashout < CRASH_MIN_AUTO_CASHOUT {
		return apperr.Validation("crash.join", "auto cashout must be at least %s", CRASH_MIN_AUTO_CASHOUT)
	}
	if _, dup := r.byUser[stakeKey(s.TenantID, s.UserID)]; dup {
		return apperr.IllegalState("crash.join", "user %s already joined round %s", s.UserID, r.id)
	}
	return nil
}

func (r *CrashRound) join(s PlayerStake) {
	s.CashedOut = false
	s.CashoutMultiplier = 0
	s.Payout = 0
	p := &s
	r.stakes = append(r.stakes, p)
	r.byUser[stakeKey(s.TenantID, s.UserID)] = p
}

func stakeKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (r *CrashRound) start(now time.Time) error {
	if r.phase != PhaseJoining {
		return apperr.IllegalState("crash.start", "round %s is %s", r.id, r.phase)
	}
	r.phase = PhaseRunning
	r.startedAt = now
	r.current = money.One
	return nil
}

func (r *CrashRound) cashOutAt(s *PlayerStake, m money.Multiplier) PlayerStake {
	s.CashedOut = true
	s.CashoutMultiplier = m
	s.Payout = money.Payout(s.BetAmount, m)
	return *s
}

// tick advances the multiplier to its value at now. Auto cashouts at or below
// both the new multiplier and the crash point settle first, in join order,
// and are paid at their own target. Then the crash check runs.
func (r *CrashRound) tick(now time.Time) (cashed []PlayerStake, crashed bool) {
	if r.phase != PhaseRunning {
		return nil, false
	}
	m := r.engine.MultiplierAt(now.Sub(r.startedAt))
	if m < r.current {
		m = r.current
	}

	reach := m
	if reach > r.crashPoint {
		reach = r.crashPoint
	}
	for _, s := range r.stakes {
		if !s.CashedOut && s.AutoCashout > 0 && s.AutoCashout <= reach {
			cashed = append(cashed, r.cashOutAt(s, s.AutoCashout))
		}
	}

	if m >= r.crashPoint {
		r.phase = PhaseCrashed
		r.current = r.crashPoint
		r.crashedAt = now
		return cashed, true
	}
	r.current = m
	return cashed, false
}

func (r *CrashRound) cashOut(tenantID, userID string) (PlayerStake, error) {
	if r.phase != PhaseRunning {
		return PlayerStake{}, apperr.IllegalState("crash.cashout", "round %s is %s", r.id, r.phase)
	}
	s, ok := r.byUser[stakeKey(tenantID, userID)]
	if !ok {
		return PlayerStake{}, apperr.NotFound("crash.cashout", "user %s has no stake in round %s", userID, r.id)
	}
	if s.CashedOut {
		return PlayerStake{}, apperr.IllegalState("crash.cashout", "user %s already cashed out", userID)
	}
	return r.cashOutAt(s, r.current), nil
}

// losers lists the stakes still open once the round has crashed.
func (r *CrashRound) losers() []PlayerStake {
	var out []PlayerStake
	for _, s := range r.stakes {
		if !s.CashedOut {
			out = append(out, *s)
		}
	}
	return out
}

func (r *CrashRound) snapshot() CrashSnapshot {
	snap := CrashSnapshot{
		RoundID:  r.id,
		Phase:    r.phase,
		Current:  r.current,
		Fairness: r.seeds.Public(),
		OpenedAt: r.openedAt,
		Stakes:   make([]PlayerStake, 0, len(r.stakes)),
	}
	for _, s := range r.stakes {
		snap.Stakes = append(snap.Stakes, *s)
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		snap.StartedAt = &t
	}
	if r.phase == PhaseCrashed {
		snap.CrashPoint = r.crashPoint
		snap.Fairness = r.seeds
		t := r.crashedAt
		snap.CrashedAt = &t
	}
	return snap
}

// Result is the public record of a crashed round.
func (s CrashSnapshot) Result() CrashResult {
	res := CrashResult{
		RoundID:    s.RoundID,
		CrashPoint: s.CrashPoint,
		ServerSeed: s.Fairness.ServerSeed,
		SeedHash:   s.Fairness.ServerSeedHash,
		ClientSeed: s.Fairness.ClientSeed,
		Nonce:      s.Fairness.Nonce,
	}
	if s.CrashedAt != nil {
		res.CrashedAt = *s.CrashedAt
	}
	return res
}
