package game

import (
	"sort"

	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

const (
	MINES_GRID_SIZE        = 25 // 5x5 grid
	MINES_MIN_COUNT        = 1
	MINES_MAX_COUNT        = 24
	MINES_MULTIPLIER_PLACE = 2
)

type MinesParams struct {
	Mines int `json:"mines"`
}

type MinesView struct {
	Mines          int              `json:"mines"`
	Revealed       []int            `json:"revealed"`
	Multiplier     money.Multiplier `json:"multiplier"`
	NextMultiplier money.Multiplier `json:"next_multiplier,omitempty"`
	MinePositions  []int            `json:"mine_positions,omitempty"`
	HitMine        *int             `json:"hit_mine,omitempty"`
}

type MinesEngine struct {
	houseEdge decimal.Decimal
}

func NewMinesEngine(houseEdge decimal.Decimal) *MinesEngine {
	return &MinesEngine{houseEdge: houseEdge}
}

func (e *MinesEngine) GetType() GameType {
	return GameTypeMines
}

func (e *MinesEngine) Validate(req StartRequest) error {
	if n := req.Mines.Mines; n < MINES_MIN_COUNT || n > MINES_MAX_COUNT {
		return apperr.Validation("mines.start", "mine count %d outside %d-%d", n, MINES_MIN_COUNT, MINES_MAX_COUNT)
	}
	return nil
}

// minePositions shuffles the grid with the seed stream and keeps the first n
// tiles, i.e. n positions drawn uniformly without replacement.
func minePositions(seeds fair.SeedPair, n int) []int {
	grid := make([]int, MINES_GRID_SIZE)
	for i := range grid {
		grid[i] = i
	}
	seeds.Stream().Shuffle(len(grid), func(i, j int) { grid[i], grid[j] = grid[j], grid[i] })
	mines := append([]int(nil), grid[:n]...)
	sort.Ints(mines)
	return mines
}

func (e *MinesEngine) NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error) {
	if err := e.Validate(req); err != nil {
		return nil, err
	}
	return newMinesRound(req.Stake, minePositions(seeds, req.Mines.Mines), e.houseEdge), nil
}

func (e *MinesEngine) Replay(seeds fair.SeedPair) any {
	layout := make(map[int][]int, MINES_MAX_COUNT)
	for n := MINES_MIN_COUNT; n <= MINES_MAX_COUNT; n++ {
		layout[n] = minePositions(seeds, n)
	}
	return map[string]any{"mine_positions_by_count": layout}
}

// StepFactor is the multiplier growth for revealing one more safe tile after
// `revealed` safe tiles: (tilesRemaining / safeTilesRemaining) × (1 - edge).
func StepFactor(mines, revealed int, houseEdge decimal.Decimal) decimal.Decimal {
	tiles := decimal.NewFromInt(int64(MINES_GRID_SIZE - revealed))
	safe := decimal.NewFromInt(int64(MINES_GRID_SIZE - mines - revealed))
	return tiles.Div(safe).Mul(decimal.NewFromInt(1).Sub(houseEdge))
}

type minesRound struct {
	outcome
	edge     decimal.Decimal
	mines    []int
	isMine   map[int]bool
	revealed []int
	seen     map[int]bool
	exact    decimal.Decimal
	hit      *int
}

func newMinesRound(stake money.Amount, mines []int, edge decimal.Decimal) *minesRound {
	r := &minesRound{
		outcome: outcome{phase: PhaseInProgress, status: StatusPending, stake: stake, mult: money.One},
		edge:    edge,
		mines:   mines,
		isMine:  make(map[int]bool, len(mines)),
		seen:    make(map[int]bool),
		exact:   decimal.NewFromInt(1),
	}
	for _, p := range mines {
		r.isMine[p] = true
	}
	return r
}

func (r *minesRound) safeTiles() int {
	return MINES_GRID_SIZE - len(r.mines)
}

func (r *minesRound) Act(a Action) error {
	switch a.Type {
	case ActionReveal:
		return r.reveal(a.Position)
	case ActionCashout:
		return r.cashOut()
	}
	return apperr.Validation("mines.act", "unsupported action %q", a.Type)
}

func (r *minesRound) reveal(pos int) error {
	if err := r.requirePhase("mines.reveal", PhaseInProgress); err != nil {
		return err
	}
	if pos < 0 || pos >= MINES_GRID_SIZE {
		return apperr.Validation("mines.reveal", "position %d outside 0-%d", pos, MINES_GRID_SIZE-1)
	}
	if r.seen[pos] {
		return apperr.IllegalState("mines.reveal", "tile %d already revealed", pos)
	}

	if r.isMine[pos] {
		hit := pos
		r.hit = &hit
		r.finish(PhaseBusted, StatusLost, money.Zero)
		return nil
	}

	r.exact = r.exact.Mul(StepFactor(len(r.mines), len(r.revealed), r.edge))
	r.revealed = append(r.revealed, pos)
	r.seen[pos] = true
	r.mult = money.MultiplierFromDecimal(r.exact, MINES_MULTIPLIER_PLACE)

	if len(r.revealed) == r.safeTiles() {
		r.finish(PhaseCashedOut, StatusWon, r.mult)
	}
	return nil
}

func (r *minesRound) cashOut() error {
	if err := r.requirePhase("mines.cashout", PhaseInProgress); err != nil {
		return err
	}
	if len(r.revealed) == 0 {
		return apperr.IllegalState("mines.cashout", "reveal at least one tile before cashing out")
	}
	r.finish(PhaseCashedOut, StatusWon, r.mult)
	return nil
}

func (r *minesRound) View(reveal bool) any {
	v := MinesView{
		Mines:      len(r.mines),
		Revealed:   append([]int{}, r.revealed...),
		Multiplier: r.mult,
		HitMine:    r.hit,
	}
	if r.phase == PhaseInProgress && len(r.revealed) < r.safeTiles() {
		next := r.exact.Mul(StepFactor(len(r.mines), len(r.revealed), r.edge))
		v.NextMultiplier = money.MultiplierFromDecimal(next, MINES_MULTIPLIER_PLACE)
	}
	if reveal {
		v.MinePositions = append([]int{}, r.mines...)
	}
	return v
}
