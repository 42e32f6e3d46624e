package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
)

const (
	LOCK_WAIT       = 2 * time.Second
	TOMBSTONE_LIMIT = 10000
)

// FundFunc debits extra stake for r before an action runs. The returned undo
// is called if the action then fails.
type FundFunc func(r *Round, extra money.Amount) (undo func(), err error)

type seat struct {
	round *Round
	lock  chan struct{}
}

// Table holds the active rounds. Each round has its own exclusive section;
// the table lock only guards the map.
type Table struct {
	mu       sync.Mutex
	rounds   map[string]*seat
	settled  map[string]bool
	order    []string
	lockWait time.Duration
	now      func() time.Time
}

func NewTable(lockWait time.Duration) *Table {
	if lockWait <= 0 {
		lockWait = LOCK_WAIT
	}
	return &Table{
		rounds:   make(map[string]*seat),
		settled:  make(map[string]bool),
		lockWait: lockWait,
		now:      time.Now,
	}
}

func (t *Table) Insert(r *Round) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rounds[r.ID] = &seat{round: r, lock: make(chan struct{}, 1)}
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rounds)
}

func (t *Table) lookup(op, id string) (*seat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.rounds[id]
	if !ok {
		if t.settled[id] {
			return nil, apperr.IllegalState(op, "round %s is already settled", id)
		}
		return nil, apperr.NotFound(op, "round %s", id)
	}
	return s, nil
}

// acquire waits for the round's exclusive section. Giving up is a conflict
// the caller may retry.
func (t *Table) acquire(ctx context.Context, op string, s *seat) error {
	timer := time.NewTimer(t.lockWait)
	defer timer.Stop()
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperr.Conflict(op, "round %s busy: %v", s.round.ID, ctx.Err())
	case <-timer.C:
		return apperr.Conflict(op, "round %s busy", s.round.ID)
	}
}

func release(s *seat) { <-s.lock }

func owns(r *Round, tenantID, userID string) bool {
	return r.TenantID == tenantID && r.UserID == userID
}

// Get renders a round for its owner.
func (t *Table) Get(ctx context.Context, id, tenantID, userID string) (RoundState, error) {
	s, err := t.lookup("table.get", id)
	if err != nil {
		return RoundState{}, err
	}
	if !owns(s.round, tenantID, userID) {
		return RoundState{}, apperr.NotFound("table.get", "round %s", id)
	}
	if err := t.acquire(ctx, "table.get", s); err != nil {
		return RoundState{}, err
	}
	defer release(s)
	return s.round.State(false), nil
}

// Act applies one action under the round's exclusive section. When the action
// ends the round it is removed from the table and returned with done set, and
// the caller owns settlement from then on.
func (t *Table) Act(ctx context.Context, id, tenantID, userID string, a Action, fund FundFunc) (r *Round, done bool, err error) {
	s, err := t.lookup("table.act", id)
	if err != nil {
		return nil, false, err
	}
	if !owns(s.round, tenantID, userID) {
		return nil, false, apperr.NotFound("table.act", "round %s", id)
	}
	if err := t.acquire(ctx, "table.act", s); err != nil {
		return nil, false, err
	}
	defer release(s)

	r = s.round
	if r.Done() {
		return nil, false, apperr.IllegalState("table.act", "round %s is already settled", id)
	}

	m := r.Machine()
	var undo func()
	if raiser, ok := m.(Raiser); ok && fund != nil {
		extra, err := raiser.RaiseFor(a)
		if err != nil {
			return nil, false, err
		}
		if extra > 0 {
			if undo, err = fund(r, extra); err != nil {
				return nil, false, err
			}
		}
	}

	if err := m.Act(a); err != nil {
		if undo != nil {
			undo()
		}
		return nil, false, err
	}

	now := t.now()
	r.lastSeen = now
	if r.Done() {
		r.EndedAt = now
		t.retire(id)
		return r, true, nil
	}
	return r, false, nil
}

func (t *Table) retire(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rounds, id)
	t.settled[id] = true
	t.order = append(t.order, id)
	for len(t.order) > TOMBSTONE_LIMIT {
		delete(t.settled, t.order[0])
		t.order = t.order[1:]
	}
}

// Expire force-ends rounds idle for longer than idle. Rounds whose section is
// held by an in-flight action are left for the next sweep.
func (t *Table) Expire(idle time.Duration) []*Round {
	now := t.now()
	cutoff := now.Add(-idle)

	t.mu.Lock()
	candidates := make([]*seat, 0)
	for _, s := range t.rounds {
		candidates = append(candidates, s)
	}
	t.mu.Unlock()

	var expired []*Round
	for _, s := range candidates {
		select {
		case s.lock <- struct{}{}:
		default:
			continue
		}
		r := s.round
		if !r.Done() && r.lastSeen.Before(cutoff) {
			r.Machine().Expire()
			r.EndedAt = now
			t.retire(r.ID)
			expired = append(expired, r)
		}
		release(s)
	}
	if len(expired) > 0 {
		log.Info().Str("component", "table").Int("expired", len(expired)).Dur("idle", idle).Msg("expired idle rounds")
	}
	return expired
}
