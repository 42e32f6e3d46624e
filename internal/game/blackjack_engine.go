package game

import (
	"fairplay/internal/apperr"
	"fairplay/internal/fair"
	"fairplay/internal/money"
)

var (
	blackjackPays = money.Multiplier(25000)
	winPays       = money.Whole(2)
	pushPays      = money.One
)

type BlackjackView struct {
	PlayerHand  []Card `json:"player_hand"`
	PlayerValue int    `json:"player_value"`
	DealerHand  []Card `json:"dealer_hand"`
	DealerValue *int   `json:"dealer_value,omitempty"`
	Doubled     bool   `json:"doubled"`
	Result      string `json:"result,omitempty"`
}

type BlackjackEngine struct{}

func NewBlackjackEngine() *BlackjackEngine {
	return &BlackjackEngine{}
}

func (e *BlackjackEngine) GetType() GameType {
	return GameTypeBlackjack
}

func (e *BlackjackEngine) Validate(StartRequest) error { return nil }

func shuffledShoe(seeds fair.SeedPair) []Card {
	shoe := newShoe(BLACKJACK_DECKS)
	seeds.Stream().Shuffle(len(shoe), func(i, j int) { shoe[i], shoe[j] = shoe[j], shoe[i] })
	return shoe
}

func (e *BlackjackEngine) NewMachine(req StartRequest, seeds fair.SeedPair) (Machine, error) {
	return newBlackjackRound(req.Stake, shuffledShoe(seeds)), nil
}

// Replay lists the top of the shoe, which covers any single hand.
func (e *BlackjackEngine) Replay(seeds fair.SeedPair) any {
	return map[string]any{"shoe_top": shuffledShoe(seeds)[:20]}
}

type blackjackRound struct {
	outcome
	shoe    []Card
	next    int
	player  []Card
	dealer  []Card
	base    money.Amount
	doubled bool
	result  string
}

// newBlackjackRound deals player, dealer, player, dealer from the top of the
// shoe. A natural 21 ends the round immediately.
func newBlackjackRound(stake money.Amount, shoe []Card) *blackjackRound {
	r := &blackjackRound{
		outcome: outcome{phase: PhasePlayerTurn, status: StatusPending, stake: stake},
		shoe:    shoe,
		base:    stake,
	}
	r.player = append(r.player, r.draw())
	r.dealer = append(r.dealer, r.draw())
	r.player = append(r.player, r.draw())
	r.dealer = append(r.dealer, r.draw())

	if HandValue(r.player) == 21 {
		if HandValue(r.dealer) == 21 {
			r.settle("push", StatusPush, pushPays)
		} else {
			r.settle("blackjack", StatusWon, blackjackPays)
		}
	}
	return r
}

func (r *blackjackRound) draw() Card {
	c := r.shoe[r.next]
	r.next++
	return c
}

func (r *blackjackRound) settle(result string, status OutcomeStatus, mult money.Multiplier) {
	r.result = result
	r.finish(PhaseSettled, status, mult)
}

func (r *blackjackRound) Act(a Action) error {
	switch a.Type {
	case ActionHit:
		if err := r.requirePhase("blackjack.hit", PhasePlayerTurn); err != nil {
			return err
		}
		r.hit()
		return nil
	case ActionStand:
		if err := r.requirePhase("blackjack.stand", PhasePlayerTurn); err != nil {
			return err
		}
		r.stand()
		return nil
	case ActionDouble:
		if err := r.canDouble(); err != nil {
			return err
		}
		r.doubled = true
		r.stake = r.base * 2
		if r.hit() {
			r.stand()
		}
		return nil
	}
	return apperr.Validation("blackjack.act", "unsupported action %q", a.Type)
}

func (r *blackjackRound) canDouble() error {
	if err := r.requirePhase("blackjack.double", PhasePlayerTurn); err != nil {
		return err
	}
	if len(r.player) != 2 {
		return apperr.IllegalState("blackjack.double", "double down needs exactly two cards")
	}
	return nil
}

func (r *blackjackRound) RaiseFor(a Action) (money.Amount, error) {
	if a.Type != ActionDouble {
		return 0, nil
	}
	if err := r.canDouble(); err != nil {
		return 0, err
	}
	return r.base, nil
}

// hit reports whether the player is still alive.
func (r *blackjackRound) hit() bool {
	r.player = append(r.player, r.draw())
	if HandValue(r.player) > 21 {
		r.settle("bust", StatusLost, money.Zero)
		return false
	}
	return true
}

func (r *blackjackRound) stand() {
	r.phase = PhaseDealerTurn
	for HandValue(r.dealer) < 17 {
		r.dealer = append(r.dealer, r.draw())
	}

	player, dealer := HandValue(r.player), HandValue(r.dealer)
	switch {
	case dealer > 21 || player > dealer:
		r.settle("win", StatusWon, winPays)
	case player == dealer:
		r.settle("push", StatusPush, pushPays)
	default:
		r.settle("lose", StatusLost, money.Zero)
	}
}

func (r *blackjackRound) View(reveal bool) any {
	v := BlackjackView{
		PlayerHand:  append([]Card{}, r.player...),
		PlayerValue: HandValue(r.player),
		Doubled:     r.doubled,
		Result:      r.result,
	}
	if reveal {
		v.DealerHand = append([]Card{}, r.dealer...)
		dv := HandValue(r.dealer)
		v.DealerValue = &dv
	} else {
		v.DealerHand = []Card{r.dealer[0]}
	}
	return v
}
