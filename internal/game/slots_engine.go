package game

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fairplay/internal/fair"
	"fairplay/internal/money"
)

//go:embed slots_paytable.yaml
var defaultPaytable []byte

type SlotSymbol struct {
	Name   string        `yaml:"name" json:"name"`
	Weight int           `yaml:"weight" json:"weight"`
	Pays   map[int]int64 `yaml:"pays" json:"pays"`
}

type Paytable struct {
	Rows    int          `yaml:"rows" json:"rows"`
	Cols    int          `yaml:"cols" json:"cols"`
	Symbols []SlotSymbol `yaml:"symbols" json:"symbols"`

	totalWeight int
}

// LoadPaytable reads a YAML paytable from path, or the built-in one when path
// is empty.
func LoadPaytable(path string) (*Paytable, error) {
	raw := defaultPaytable
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read paytable: %w", err)
		}
		raw = b
	}
	return ParsePaytable(raw)
}

func ParsePaytable(raw []byte) (*Paytable, error) {
	var pt Paytable
	if err := yaml.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("parse paytable: %w", err)
	}
	if pt.Rows < 1 || pt.Cols < 1 {
		return nil, fmt.Errorf("paytable needs at least one row and column, got %dx%d", pt.Rows, pt.Cols)
	}
	if len(pt.Symbols) == 0 {
		return nil, fmt.Errorf("paytable has no symbols")
	}
	seen := make(map[string]bool)
	for _, s := range pt.Symbols {
		if s.Weight <= 0 {
			return nil, fmt.Errorf("symbol %q: weight must be positive", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("symbol %q listed twice", s.Name)
		}
		seen[s.Name] = true
		pt.totalWeight += s.Weight
	}
	return &pt, nil
}

// pick maps a value in [0,totalWeight) onto the cumulative weights.
func (pt *Paytable) pick(v int) string {
	for _, s := range pt.Symbols {
		if v < s.Weight {
			return s.Name
		}
		v -= s.Weight
	}
	return pt.Symbols[len(pt.Symbols)-1].Name
}

func (pt *Paytable) pays(name string, count int) int64 {
	for _, s := range pt.Symbols {
		if s.Name == name {
			return s.Pays[count]
		}
	}
	return 0
}

type SlotLine struct {
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	Symbol     string `json:"symbol"`
	Count      int    `json:"count"`
	Multiplier int64  `json:"multiplier"`
}

type SlotsView struct {
	Grid  [][]string `json:"grid"`
	Lines []SlotLine `json:"lines"`
}

type SlotsEngine struct {
	paytable *Paytable
}

func NewSlotsEngine(pt *Paytable) *SlotsEngine {
	return &SlotsEngine{paytable: pt}
}

func (e *SlotsEngine) GetType() GameType {
	return GameTypeSlots
}

func (e *SlotsEngine) Paytable() *Paytable {
	return e.paytable
}

func (e *SlotsEngine) Validate(StartRequest) error { return nil }

func (e *SlotsEngine) spin(seeds fair.SeedPair) [][]string {
	pt := e.paytable
	s := seeds.Stream()
	grid := make([][]string, pt.Rows)
	for r := range grid {
		grid[r] = make([]string, pt.Cols)
		for c := range grid[r] {
			grid[r][c] = pt.pick(s.IntN(pt.totalWeight))
		}
	}
	return grid
}

func (e *SlotsEngine) NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error) {
	return e.resolve(req.Stake, e.spin(seeds)), nil
}

func (e *SlotsEngine) resolve(stake money.Amount, grid [][]string) *slotsRound {
	lines := EvaluateLines(e.paytable, grid)
	var total int64
	for _, l := range lines {
		total += l.Multiplier
	}

	r := &slotsRound{outcome: outcome{stake: stake}, grid: grid, lines: lines}
	if total > 0 {
		r.finish(PhaseSettled, StatusWon, money.Whole(total))
	} else {
		r.finish(PhaseSettled, StatusLost, money.Zero)
	}
	return r
}

// EvaluateLines scores every row, every column and, on square grids, both
// diagonals. A line pays when its most common symbol appears at least twice
// and the paytable defines a payout for that count.
func EvaluateLines(pt *Paytable, grid [][]string) []SlotLine {
	rows := len(grid)
	if rows == 0 {
		return nil
	}
	cols := len(grid[0])

	var lines []SlotLine
	score := func(kind string, index int, cells []string) {
		counts := make(map[string]int, len(cells))
		best, bestCount := "", 0
		for _, c := range cells {
			counts[c]++
			if counts[c] > bestCount {
				best, bestCount = c, counts[c]
			}
		}
		if bestCount < 2 {
			return
		}
		if m := pt.pays(best, bestCount); m > 0 {
			lines = append(lines, SlotLine{Kind: kind, Index: index, Symbol: best, Count: bestCount, Multiplier: m})
		}
	}

	for r := 0; r < rows; r++ {
		score("row", r, grid[r])
	}
	for c := 0; c < cols; c++ {
		col := make([]string, rows)
		for r := 0; r < rows; r++ {
			col[r] = grid[r][c]
		}
		score("column", c, col)
	}
	if rows == cols {
		main, anti := make([]string, rows), make([]string, rows)
		for i := 0; i < rows; i++ {
			main[i] = grid[i][i]
			anti[i] = grid[i][cols-1-i]
		}
		score("diagonal", 0, main)
		score("diagonal", 1, anti)
	}
	return lines
}

func (e *SlotsEngine) Replay(seeds fair.SeedPair) any {
	return map[string]any{"grid": e.spin(seeds)}
}

type slotsRound struct {
	outcome
	grid  [][]string
	lines []SlotLine
}

func (r *slotsRound) Act(Action) error {
	return settledOnStart("slots.act")
}

func (r *slotsRound) View(bool) any {
	return SlotsView{Grid: r.grid, Lines: r.lines}
}
