package fantasy

import (
	"sort"
	"sync"
	"time"

	"fairplay/internal/apperr"
	"fairplay/internal/money"
)

// Registry holds the contests of the process.
type Registry struct {
	mu       sync.RWMutex
	contests map[string]*Contest
	fee      money.Amount
	budget   money.Amount
	now      func() time.Time
}

// NewRegistry uses fee and budget for contests that do not set their own.
func NewRegistry(fee, budget money.Amount) *Registry {
	return &Registry{contests: make(map[string]*Contest), fee: fee, budget: budget, now: time.Now}
}

func (r *Registry) Create(spec ContestSpec) (*Contest, error) {
	if spec.EntryFee == 0 {
		spec.EntryFee = r.fee
	}
	if spec.Budget == 0 {
		spec.Budget = r.budget
	}
	c, err := NewContest(spec, r.now())
	if err != nil {
		return nil, err
	}
	c.now = r.now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contests[c.id] = c
	return c, nil
}

func (r *Registry) Get(id string) (*Contest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contests[id]
	if !ok {
		return nil, apperr.NotFound("fantasy", "contest %s", id)
	}
	return c, nil
}

// List returns all contests, oldest first.
func (r *Registry) List() []ContestView {
	r.mu.RLock()
	all := make([]*Contest, 0, len(r.contests))
	for _, c := range r.contests {
		all = append(all, c)
	}
	r.mu.RUnlock()

	out := make([]ContestView, 0, len(all))
	for _, c := range all {
		out = append(out, c.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
