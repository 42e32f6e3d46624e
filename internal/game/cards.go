package game

import "fmt"

const BLACKJACK_DECKS = 6

var (
	cardSuits = []string{"S", "H", "D", "C"}
	cardRanks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
)

// Card rank is 1 (ace) through 13 (king).
type Card struct {
	Rank int    `json:"rank"`
	Suit string `json:"suit"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", cardRanks[c.Rank-1], c.Suit)
}

func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c Card) value() int {
	switch {
	case c.Rank == 1:
		return 11
	case c.Rank >= 10:
		return 10
	}
	return c.Rank
}

// HandValue counts aces as 11 and drops them to 1 while the hand is over 21.
func HandValue(hand []Card) int {
	total, aces := 0, 0
	for _, c := range hand {
		total += c.value()
		if c.Rank == 1 {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

func newShoe(decks int) []Card {
	shoe := make([]Card, 0, decks*52)
	for d := 0; d < decks; d++ {
		for _, s := range cardSuits {
			for r := 1; r <= 13; r++ {
				shoe = append(shoe, Card{Rank: r, Suit: s})
			}
		}
	}
	return shoe
}
