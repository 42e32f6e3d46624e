package game

import (
	"sort"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

const (
	ROULETTE_MAX_NUMBER = 36
	ROULETTE_MAX_BETS   = 50
)

var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// RoulettePayouts are "to one" odds; a winning bet returns stake × (odds+1).
var RoulettePayouts = map[string]int64{
	"straight": 35,
	"split":    17,
	"street":   11,
	"corner":   8,
	"line":     5,
	"dozen1":   2, "dozen2": 2, "dozen3": 2,
	"column1": 2, "column2": 2, "column3": 2,
	"red": 1, "black": 1, "even": 1, "odd": 1, "low": 1, "high": 1,
}

// group bets carry the numbers they cover; outside bets carry none.
var rouletteGroupSize = map[string]int{
	"straight": 1,
	"split":    2,
	"street":   3,
	"corner":   4,
	"line":     6,
}

type RouletteBet struct {
	Type    string       `json:"type"`
	Numbers []int        `json:"numbers,omitempty"`
	Amount  money.Amount `json:"amount"`
}

type RouletteParams struct {
	Bets []RouletteBet `json:"bets"`
}

type RouletteBetResult struct {
	RouletteBet
	Won    bool         `json:"won"`
	Payout money.Amount `json:"payout"`
}

type RouletteView struct {
	Number int                 `json:"number"`
	Color  string              `json:"color"`
	Bets   []RouletteBetResult `json:"bets"`
}

type RouletteTable struct {
	RedNumbers []int            `json:"red_numbers"`
	Payouts    map[string]int64 `json:"payouts"`
}

func RouletteColor(n int) string {
	switch {
	case n == 0:
		return "green"
	case rouletteRed[n]:
		return "red"
	}
	return "black"
}

// RouletteWins applies a bet type's membership rule to the winning number.
func RouletteWins(bet RouletteBet, n int) bool {
	switch bet.Type {
	case "straight", "split", "street", "corner", "line":
		for _, v := range bet.Numbers {
			if v == n {
				return true
			}
		}
		return false
	case "red":
		return n != 0 && rouletteRed[n]
	case "black":
		return n != 0 && !rouletteRed[n]
	case "even":
		return n != 0 && n%2 == 0
	case "odd":
		return n%2 == 1
	case "low":
		return n >= 1 && n <= 18
	case "high":
		return n >= 19 && n <= 36
	case "dozen1":
		return n >= 1 && n <= 12
	case "dozen2":
		return n >= 13 && n <= 24
	case "dozen3":
		return n >= 25 && n <= 36
	case "column1":
		return n > 0 && (n-1)%3 == 0
	case "column2":
		return n > 0 && (n-2)%3 == 0
	case "column3":
		return n > 0 && n%3 == 0
	}
	return false
}

// validShape checks that group numbers form the named layout shape.
func validShape(kind string, nums []int) bool {
	s := append([]int(nil), nums...)
	sort.Ints(s)
	for i, v := range s {
		if v < 0 || v > ROULETTE_MAX_NUMBER || (i > 0 && s[i-1] == v) {
			return false
		}
	}
	lo := s[0]
	switch kind {
	case "straight":
		return true
	case "split":
		hi := s[1]
		if lo == 0 {
			return hi >= 1 && hi <= 3
		}
		return hi-lo == 3 || (hi-lo == 1 && lo%3 != 0)
	case "street":
		return lo%3 == 1 && s[1] == lo+1 && s[2] == lo+2
	case "corner":
		return lo > 0 && lo%3 != 0 && s[1] == lo+1 && s[2] == lo+3 && s[3] == lo+4
	case "line":
		if lo%3 != 1 {
			return false
		}
		for i, v := range s {
			if v != lo+i {
				return false
			}
		}
		return true
	}
	return false
}

type RouletteEngine struct{}

func NewRouletteEngine() *RouletteEngine {
	return &RouletteEngine{}
}

func (e *RouletteEngine) GetType() GameType {
	return GameTypeRoulette
}

func (e *RouletteEngine) TableInfo() RouletteTable {
	red := make([]int, 0, len(rouletteRed))
	for n := range rouletteRed {
		red = append(red, n)
	}
	sort.Ints(red)
	return RouletteTable{RedNumbers: red, Payouts: RoulettePayouts}
}

// TotalStake is the sum of all bet amounts on the spin.
func (e *RouletteEngine) TotalStake(p RouletteParams) (money.Amount, error) {
	var total money.Amount
	for _, b := range p.Bets {
		var err error
		if total, err = total.Add(b.Amount); err != nil {
			return 0, apperr.Validation("roulette.start", "%v", err)
		}
	}
	return total, nil
}

func (e *RouletteEngine) Validate(req StartRequest) error {
	bets := req.Roulette.Bets
	if len(bets) == 0 {
		return apperr.Validation("roulette.start", "at least one bet is required")
	}
	if len(bets) > ROULETTE_MAX_BETS {
		return apperr.Validation("roulette.start", "at most %d bets per spin", ROULETTE_MAX_BETS)
	}
	for i, b := range bets {
		if _, ok := RoulettePayouts[b.Type]; !ok {
			return apperr.Validation("roulette.start", "bet %d: unknown type %q", i, b.Type)
		}
		if b.Amount <= 0 {
			return apperr.Validation("roulette.start", "bet %d: amount must be positive", i)
		}
		size, grouped := rouletteGroupSize[b.Type]
		if !grouped {
			if len(b.Numbers) != 0 {
				return apperr.Validation("roulette.start", "bet %d: %s takes no numbers", i, b.Type)
			}
			continue
		}
		if len(b.Numbers) != size || !validShape(b.Type, b.Numbers) {
			return apperr.Validation("roulette.start", "bet %d: numbers %v are not a valid %s", i, b.Numbers, b.Type)
		}
	}
	total, err := e.TotalStake(req.Roulette)
	if err != nil {
		return err
	}
	if req.Stake != 0 && req.Stake != total {
		return apperr.Validation("roulette.start", "stake %s does not match bet total %s", req.Stake, total)
	}
	return nil
}

func spinNumber(seeds fair.SeedPair) int {
	return seeds.Stream().IntN(ROULETTE_MAX_NUMBER + 1)
}

func (e *RouletteEngine) NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error) {
	if err := e.Validate(req); err != nil {
		return nil, err
	}
	return resolveRoulette(req.Roulette.Bets, spinNumber(seeds)), nil
}

func resolveRoulette(bets []RouletteBet, n int) *rouletteRound {
	r := &rouletteRound{number: n}
	for _, b := range bets {
		res := RouletteBetResult{RouletteBet: b}
		if RouletteWins(b, n) {
			res.Won = true
			res.Payout = money.Payout(b.Amount, money.Whole(RoulettePayouts[b.Type]+1))
		}
		r.stake += b.Amount
		r.total += res.Payout
		r.bets = append(r.bets, res)
	}

	status := StatusLost
	if r.total > 0 {
		status = StatusWon
	}
	r.finish(PhaseSettled, status, money.Ratio(r.total, r.stake))
	return r
}

func (e *RouletteEngine) Result(seeds fair.SeedPair) float64 {
	return float64(spinNumber(seeds))
}

func (e *RouletteEngine) Tolerance() float64 { return 0 }

func (e *RouletteEngine) Replay(seeds fair.SeedPair) any {
	n := spinNumber(seeds)
	return map[string]any{"number": n, "color": RouletteColor(n)}
}

type rouletteRound struct {
	outcome
	number int
	bets   []RouletteBetResult
	total  money.Amount
}

func (r *rouletteRound) Act(Action) error {
	return settledOnStart("roulette.act")
}

// Payout sums per-bet payouts so no rounding goes through the blended ratio.
func (r *rouletteRound) Payout() money.Amount {
	return r.total
}

func (r *rouletteRound) View(bool) any {
	return RouletteView{Number: r.number, Color: RouletteColor(r.number), Bets: r.bets}
}
