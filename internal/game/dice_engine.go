package game

import (
	"github.com/shopspring/decimal"

	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

const (
	DICE_ROLL_DIGITS      = 4 // 0.00 - 99.99 in hundredths
	DICE_MULTIPLIER_PLACE = 4
	DICE_MIN_WIN_CHANCE   = 1  // percent
	DICE_MAX_WIN_CHANCE   = 98 // percent
)

type DiceParams struct {
	Target   decimal.Decimal `json:"target"`
	RollOver bool            `json:"roll_over"`
}

// DiceView is the settled result shown to the player.
type DiceView struct {
	Target    decimal.Decimal  `json:"target"`
	RollOver  bool             `json:"roll_over"`
	Roll      decimal.Decimal  `json:"roll"`
	WinChance decimal.Decimal  `json:"win_chance"`
	Payout    money.Multiplier `json:"payout_multiplier"`
	Win       bool             `json:"win"`
}

type DiceEngine struct {
	houseEdge decimal.Decimal
}

func NewDiceEngine(houseEdge decimal.Decimal) *DiceEngine {
	return &DiceEngine{houseEdge: houseEdge}
}

func (d *DiceEngine) GetType() GameType {
	return GameTypeDice
}

func (d *DiceEngine) Validate(req StartRequest) error {
	_, err := d.winChance(req.Dice)
	return err
}

// winChance returns the win probability in percent.
func (d *DiceEngine) winChance(p DiceParams) (decimal.Decimal, error) {
	if !p.Target.Equal(p.Target.Truncate(2)) {
		return decimal.Zero, apperr.Validation("dice.start", "target %s has more than two decimals", p.Target)
	}
	chance := p.Target
	if p.RollOver {
		chance = decimal.NewFromInt(100).Sub(p.Target)
	}
	if chance.LessThan(decimal.NewFromInt(DICE_MIN_WIN_CHANCE)) || chance.GreaterThan(decimal.NewFromInt(DICE_MAX_WIN_CHANCE)) {
		return decimal.Zero, apperr.Validation("dice.start", "win chance %s%% outside %d-%d%%", chance, DICE_MIN_WIN_CHANCE, DICE_MAX_WIN_CHANCE)
	}
	return chance, nil
}

// CalculateMultiplier is (1 - houseEdge) / winProbability.
func (d *DiceEngine) CalculateMultiplier(p DiceParams) (money.Multiplier, decimal.Decimal, error) {
	chance, err := d.winChance(p)
	if err != nil {
		return money.Zero, decimal.Zero, err
	}
	m := decimal.NewFromInt(1).Sub(d.houseEdge).Div(chance.Shift(-2))
	return money.MultiplierFromDecimal(m, DICE_MULTIPLIER_PLACE), chance, nil
}

// rollUnits is the roll in hundredths, 0..9999.
func rollUnits(seeds fair.SeedPair) int64 {
	return int64(fair.Units(fair.Derive(seeds.ServerSeed, seeds.ClientSeed, seeds.Nonce), DICE_ROLL_DIGITS))
}

func (d *DiceEngine) NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error) {
	return d.resolve(req, rollUnits(seeds))
}

func (d *DiceEngine) resolve(req StartRequest, roll int64) (*diceRound, error) {
	mult, chance, err := d.CalculateMultiplier(req.Dice)
	if err != nil {
		return nil, err
	}
	target := req.Dice.Target.Shift(2).IntPart()
	win := roll < target
	if req.Dice.RollOver {
		win = roll > target
	}

	r := &diceRound{
		outcome: outcome{stake: req.Stake},
		params:  req.Dice,
		roll:    roll,
		chance:  chance,
		payout:  mult,
		win:     win,
	}
	if win {
		r.finish(PhaseSettled, StatusWon, mult)
	} else {
		r.finish(PhaseSettled, StatusLost, money.Zero)
	}
	return r, nil
}

func (d *DiceEngine) Result(seeds fair.SeedPair) float64 {
	return float64(rollUnits(seeds)) / 100
}

// Tolerance admits a claimed roll one step away.
func (d *DiceEngine) Tolerance() float64 { return 0.01 }

func (d *DiceEngine) Replay(seeds fair.SeedPair) any {
	return map[string]any{"roll": decimal.New(rollUnits(seeds), -2)}
}

type diceRound struct {
	outcome
	params DiceParams
	roll   int64
	chance decimal.Decimal
	payout money.Multiplier
	win    bool
}

func (r *diceRound) Act(Action) error {
	return settledOnStart("dice.act")
}

func (r *diceRound) View(bool) any {
	return DiceView{
		Target:    r.params.Target,
		RollOver:  r.params.RollOver,
		Roll:      decimal.New(r.roll, -2),
		WinChance: r.chance,
		Payout:    r.payout,
		Win:       r.win,
	}
}
