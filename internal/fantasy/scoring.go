package fantasy

import "github.com/shopspring/decimal"

const (
	POINTS_RUN          = 1
	POINTS_FOUR         = 1
	POINTS_SIX          = 2
	POINTS_HALF_CENTURY = 8
	POINTS_CENTURY      = 16
	POINTS_WICKET       = 25
	POINTS_CATCH        = 8
	POINTS_RUN_OUT      = 6
)

var (
	captainFactor     = decimal.NewFromInt(2)
	viceCaptainFactor = decimal.RequireFromString("1.5")
)

// PlayerStats is one player's match performance as reported by the data
// feed.
type PlayerStats struct {
	Runs    int `json:"runs"`
	Fours   int `json:"fours"`
	Sixes   int `json:"sixes"`
	Wickets int `json:"wickets"`
	Catches int `json:"catches"`
	RunOuts int `json:"run_outs"`
}

func (s PlayerStats) valid() bool {
	return s.Runs >= 0 && s.Fours >= 0 && s.Sixes >= 0 && s.Wickets >= 0 && s.Catches >= 0 && s.RunOuts >= 0 &&
		4*s.Fours+6*s.Sixes <= s.Runs
}

// Points scores a performance. The century bonus replaces the half-century
// bonus.
func (s PlayerStats) Points() decimal.Decimal {
	p := s.Runs*POINTS_RUN + s.Fours*POINTS_FOUR + s.Sixes*POINTS_SIX
	switch {
	case s.Runs >= 100:
		p += POINTS_CENTURY
	case s.Runs >= 50:
		p += POINTS_HALF_CENTURY
	}
	p += s.Wickets*POINTS_WICKET + s.Catches*POINTS_CATCH + s.RunOuts*POINTS_RUN_OUT
	return decimal.NewFromInt(int64(p))
}

// rosterPoints applies the captain and vice-captain multipliers.
func rosterPoints(r *Roster, stats map[string]PlayerStats) decimal.Decimal {
	total := decimal.Zero
	for _, id := range r.PlayerIDs {
		p := stats[id].Points()
		switch id {
		case r.CaptainID:
			p = p.Mul(captainFactor)
		case r.ViceCaptainID:
			p = p.Mul(viceCaptainFactor)
		}
		total = total.Add(p)
	}
	return total
}
