// Package fantasy runs fantasy cricket contests: roster entry under budget
// and role rules, live statistics, ranking and prize distribution.
package fantasy

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
)

const (
	ROSTER_SIZE       = 11
	MAX_BATSMEN       = 7
	MAX_BOWLERS       = 7
	MAX_PLAYERS       = 200
	DEFAULT_ENTRY_FEE = money.Amount(1000)
	DEFAULT_BUDGET    = money.Amount(10000)
)

type Role string

const (
	RoleBatsman      Role = "batsman"
	RoleBowler       Role = "bowler"
	RoleAllRounder   Role = "all_rounder"
	RoleWicketKeeper Role = "wicket_keeper"
)

func (r Role) valid() bool {
	switch r {
	case RoleBatsman, RoleBowler, RoleAllRounder, RoleWicketKeeper:
		return true
	}
	return false
}

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusLive      Status = "live"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Player struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Role  Role         `json:"role"`
	Team  string       `json:"team"`
	Price money.Amount `json:"price"`
}

type Roster struct {
	ID            string          `json:"id"`
	ContestID     string          `json:"contest_id"`
	TenantID      string          `json:"tenant_id"`
	UserID        string          `json:"user_id"`
	WalletID      string          `json:"-"`
	PlayerIDs     []string        `json:"player_ids"`
	CaptainID     string          `json:"captain_id"`
	ViceCaptainID string          `json:"vice_captain_id"`
	EntryFee      money.Amount    `json:"entry_fee"`
	Cost          money.Amount    `json:"cost"`
	Points        decimal.Decimal `json:"points"`
	Rank          int             `json:"rank,omitempty"`
	Prize         money.Amount    `json:"prize"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RosterRequest struct {
	PlayerIDs     []string `json:"player_ids"`
	CaptainID     string   `json:"captain_id"`
	ViceCaptainID string   `json:"vice_captain_id"`
}

// ContestSpec describes a contest to create. Zero fee and budget take the
// defaults.
type ContestSpec struct {
	Name     string       `json:"name"`
	Team1    string       `json:"team1"`
	Team2    string       `json:"team2"`
	Players  []Player     `json:"players"`
	EntryFee money.Amount `json:"entry_fee"`
	Budget   money.Amount `json:"budget"`
}

type ContestView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Team1     string       `json:"team1"`
	Team2     string       `json:"team2"`
	Status    Status       `json:"status"`
	EntryFee  money.Amount `json:"entry_fee"`
	Budget    money.Amount `json:"budget"`
	PrizePool money.Amount `json:"prize_pool"`
	Players   []Player     `json:"players"`
	Entries   int          `json:"entries"`
	Bands     []PrizeBand  `json:"prize_bands"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}

// Settlement is the result of completing a contest. Undistributed is the part
// of the pool no prize band paid out.
type Settlement struct {
	ContestID     string       `json:"contest_id"`
	PrizePool     money.Amount `json:"prize_pool"`
	Paid          money.Amount `json:"paid"`
	Undistributed money.Amount `json:"undistributed"`
	Rosters       []Roster     `json:"rosters"`
}

type Contest struct {
	mu        sync.Mutex
	id        string
	spec      ContestSpec
	status    Status
	players   map[string]Player
	rosters   []*Roster
	stats     map[string]PlayerStats
	bands     []PrizeBand
	pool      money.Amount
	result    Settlement
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	now       func() time.Time
}

func NewContest(spec ContestSpec, now time.Time) (*Contest, error) {
	if spec.EntryFee == 0 {
		spec.EntryFee = DEFAULT_ENTRY_FEE
	}
	if spec.Budget == 0 {
		spec.Budget = DEFAULT_BUDGET
	}
	if spec.EntryFee < 0 || spec.Budget < 0 {
		return nil, apperr.Validation("fantasy.create", "entry fee and budget must be positive")
	}
	if len(spec.Players) < ROSTER_SIZE || len(spec.Players) > MAX_PLAYERS {
		return nil, apperr.Validation("fantasy.create", "player pool needs %d-%d players, got %d", ROSTER_SIZE, MAX_PLAYERS, len(spec.Players))
	}
	players := make(map[string]Player, len(spec.Players))
	for _, p := range spec.Players {
		if p.ID == "" || !p.Role.valid() || p.Price <= 0 {
			return nil, apperr.Validation("fantasy.create", "player %q needs an id, a known role and a positive price", p.ID)
		}
		if _, dup := players[p.ID]; dup {
			return nil, apperr.Validation("fantasy.create", "player %q listed twice", p.ID)
		}
		players[p.ID] = p
	}
	return &Contest{
		id:        ulid.Make().String(),
		spec:      spec,
		status:    StatusUpcoming,
		players:   players,
		stats:     make(map[string]PlayerStats),
		bands:     DefaultPrizeBands,
		createdAt: now,
		now:       time.Now,
	}, nil
}

func (c *Contest) ID() string { return c.id }

func (c *Contest) EntryFee() money.Amount { return c.spec.EntryFee }

// validateRoster checks size, uniqueness, captaincy, budget and role quotas.
// It returns the roster cost.
func (c *Contest) validateRoster(req RosterRequest) (money.Amount, error) {
	const op = "fantasy.enter"
	if len(req.PlayerIDs) != ROSTER_SIZE {
		return 0, apperr.Validation(op, "roster needs %d players, got %d", ROSTER_SIZE, len(req.PlayerIDs))
	}
	seen := make(map[string]bool, ROSTER_SIZE)
	roles := make(map[Role]int)
	var cost money.Amount
	for _, id := range req.PlayerIDs {
		p, ok := c.players[id]
		if !ok {
			return 0, apperr.Validation(op, "player %q is not in this contest", id)
		}
		if seen[id] {
			return 0, apperr.Validation(op, "player %q picked twice", id)
		}
		seen[id] = true
		roles[p.Role]++
		cost += p.Price
	}
	if req.CaptainID == "" || req.ViceCaptainID == "" || req.CaptainID == req.ViceCaptainID {
		return 0, apperr.Validation(op, "captain and vice-captain must be two different players")
	}
	if !seen[req.CaptainID] || !seen[req.ViceCaptainID] {
		return 0, apperr.Validation(op, "captain and vice-captain must be in the roster")
	}
	if cost > c.spec.Budget {
		return 0, apperr.Validation(op, "roster costs %s, budget is %s", cost, c.spec.Budget)
	}
	if roles[RoleBatsman] > MAX_BATSMEN {
		return 0, apperr.Validation(op, "at most %d batsmen", MAX_BATSMEN)
	}
	if roles[RoleBowler] > MAX_BOWLERS {
		return 0, apperr.Validation(op, "at most %d bowlers", MAX_BOWLERS)
	}
	return cost, nil
}

// Enter adds a roster. pay runs under the contest lock after validation, so
// the entry fee is only taken when the roster is accepted.
func (c *Contest) Enter(tenantID, userID, walletID string, req RosterRequest, pay func(fee money.Amount) error) (Roster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusUpcoming {
		return Roster{}, apperr.IllegalState("fantasy.enter", "contest %s is %s", c.id, c.status)
	}
	cost, err := c.validateRoster(req)
	if err != nil {
		return Roster{}, err
	}
	pool, err := c.pool.Add(c.spec.EntryFee)
	if err != nil {
		return Roster{}, apperr.Validation("fantasy.enter", "%v", err)
	}
	if pay != nil {
		if err := pay(c.spec.EntryFee); err != nil {
			return Roster{}, err
		}
	}

	r := &Roster{
		ID:            ulid.Make().String(),
		ContestID:     c.id,
		TenantID:      tenantID,
		UserID:        userID,
		WalletID:      walletID,
		PlayerIDs:     append([]string(nil), req.PlayerIDs...),
		CaptainID:     req.CaptainID,
		ViceCaptainID: req.ViceCaptainID,
		EntryFee:      c.spec.EntryFee,
		Cost:          cost,
		Points:        decimal.Zero,
		CreatedAt:     c.now(),
	}
	c.rosters = append(c.rosters, r)
	c.pool = pool
	return *r, nil
}

// GoLive locks all rosters.
func (c *Contest) GoLive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusUpcoming {
		return apperr.IllegalState("fantasy.live", "contest %s is %s", c.id, c.status)
	}
	c.status = StatusLive
	c.startedAt = c.now()
	return nil
}

// RecordStats replaces the statistics of the given players.
func (c *Contest) RecordStats(stats map[string]PlayerStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusLive {
		return apperr.IllegalState("fantasy.stats", "contest %s is %s", c.id, c.status)
	}
	for id, s := range stats {
		if _, ok := c.players[id]; !ok {
			return apperr.Validation("fantasy.stats", "player %q is not in this contest", id)
		}
		if !s.valid() {
			return apperr.Validation("fantasy.stats", "player %q: inconsistent statistics %+v", id, s)
		}
	}
	for id, s := range stats {
		c.stats[id] = s
	}
	return nil
}

// rank scores every roster and orders them by points, descending. Equal
// points keep entry order.
func (c *Contest) rank() []*Roster {
	ranked := append([]*Roster(nil), c.rosters...)
	for _, r := range ranked {
		r.Points = rosterPoints(r, c.stats)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Points.GreaterThan(ranked[j].Points)
	})
	for i, r := range ranked {
		r.Rank = i + 1
	}
	return ranked
}

func (c *Contest) Leaderboard() []Roster {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ranked []*Roster
	if c.status == StatusCompleted {
		ranked = append([]*Roster(nil), c.rosters...)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank < ranked[j].Rank })
	} else {
		ranked = c.rank()
	}
	return copyRosters(ranked)
}

// Settle completes a live contest and assigns prizes.
func (c *Contest) Settle() (Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusLive {
		return Settlement{}, apperr.IllegalState("fantasy.settle", "contest %s is %s", c.id, c.status)
	}
	ranked := c.rank()
	for _, r := range ranked {
		r.Prize = 0
	}
	paid := distribute(c.pool, c.bands, ranked)
	c.status = StatusCompleted
	c.endedAt = c.now()

	c.result = Settlement{
		ContestID:     c.id,
		PrizePool:     c.pool,
		Paid:          paid,
		Undistributed: c.pool - paid,
		Rosters:       copyRosters(ranked),
	}
	return c.settlement(), nil
}

// Result returns the settlement of a completed contest.
func (c *Contest) Result() (Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCompleted {
		return Settlement{}, apperr.IllegalState("fantasy.result", "contest %s is %s", c.id, c.status)
	}
	return c.settlement(), nil
}

func (c *Contest) settlement() Settlement {
	st := c.result
	st.Rosters = make([]Roster, len(c.result.Rosters))
	for i, r := range c.result.Rosters {
		st.Rosters[i] = r
		st.Rosters[i].PlayerIDs = append([]string(nil), r.PlayerIDs...)
	}
	return st
}

// Cancel ends a contest that has not completed. The returned rosters are owed
// their entry fee.
func (c *Contest) Cancel() ([]Roster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case StatusUpcoming, StatusLive:
	default:
		return nil, apperr.IllegalState("fantasy.cancel", "contest %s is %s", c.id, c.status)
	}
	c.status = StatusCancelled
	c.endedAt = c.now()
	return copyRosters(c.rosters), nil
}

func (c *Contest) View() ContestView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := ContestView{
		ID:        c.id,
		Name:      c.spec.Name,
		Team1:     c.spec.Team1,
		Team2:     c.spec.Team2,
		Status:    c.status,
		EntryFee:  c.spec.EntryFee,
		Budget:    c.spec.Budget,
		PrizePool: c.pool,
		Players:   append([]Player(nil), c.spec.Players...),
		Entries:   len(c.rosters),
		Bands:     c.bands,
		CreatedAt: c.createdAt,
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		v.StartedAt = &t
	}
	if !c.endedAt.IsZero() {
		t := c.endedAt
		v.EndedAt = &t
	}
	return v
}

func copyRosters(in []*Roster) []Roster {
	out := make([]Roster, len(in))
	for i, r := range in {
		out[i] = *r
		out[i].PlayerIDs = append([]string(nil), r.PlayerIDs...)
	}
	return out
}
