package fantasy

import "fairplay/internal/money"

// PrizeBand pays Percent of the pool to ranks From..To inclusive.
type PrizeBand struct {
	From    int   `json:"rank_from"`
	To      int   `json:"rank_to"`
	Percent int64 `json:"percentage"`
}

var DefaultPrizeBands = []PrizeBand{
	{From: 1, To: 1, Percent: 40},
	{From: 2, To: 2, Percent: 25},
	{From: 3, To: 3, Percent: 15},
	{From: 4, To: 5, Percent: 10},
	{From: 6, To: 10, Percent: 10},
}

// distribute assigns prizes to ranked rosters. A band's share is split evenly
// between the rosters that occupy its ranks; whatever no roster occupies, and
// the cents lost to the split, stay undistributed.
func distribute(pool money.Amount, bands []PrizeBand, ranked []*Roster) (paid money.Amount) {
	for _, b := range bands {
		var occupants []*Roster
		for _, r := range ranked {
			if r.Rank >= b.From && r.Rank <= b.To {
				occupants = append(occupants, r)
			}
		}
		if len(occupants) == 0 {
			continue
		}
		share := money.Amount(int64(pool) * b.Percent / 100)
		each := share / money.Amount(len(occupants))
		for _, r := range occupants {
			r.Prize += each
			paid += each
		}
	}
	return paid
}
