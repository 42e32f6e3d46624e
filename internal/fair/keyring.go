package fair

import (
	"sync"
	"time"

	"fairplay/internal/apperr"
)

const maxClientSeedLen = 64

// Commitment is the public view of a server seed. ServerSeed is only set once
// the seed has been rotated out.
type Commitment struct {
	Owner          string     `json:"owner"`
	ServerSeedHash string     `json:"server_seed_hash"`
	ServerSeed     string     `json:"server_seed,omitempty"`
	ClientSeed     string     `json:"client_seed"`
	NextNonce      int64      `json:"next_nonce"`
	CreatedAt      time.Time  `json:"created_at"`
	RevealedAt     *time.Time `json:"revealed_at,omitempty"`
}

type session struct {
	serverSeed string
	hash       string
	clientSeed string
	nonce      int64
	createdAt  time.Time
}

func (s *session) commitment(owner string) Commitment {
	return Commitment{
		Owner:          owner,
		ServerSeedHash: s.hash,
		ClientSeed:     s.clientSeed,
		NextNonce:      s.nonce,
		CreatedAt:      s.createdAt,
	}
}

// Keyring keeps one active server seed per owner. A seed is reused across
// rounds with an increasing nonce until the owner rotates it, at which point
// it is revealed.
type Keyring struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewKeyring() *Keyring {
	return &Keyring{sessions: make(map[string]*session), now: time.Now}
}

func ValidateClientSeed(clientSeed string) error {
	if clientSeed == "" {
		return apperr.Validation("fair.client_seed", "client seed is required")
	}
	if len(clientSeed) > maxClientSeedLen {
		return apperr.Validation("fair.client_seed", "client seed longer than %d bytes", maxClientSeedLen)
	}
	return nil
}

// Commit returns the owner's active commitment, creating one if needed. A
// non-empty clientSeed replaces the default client seed for later rounds.
func (k *Keyring) Commit(owner, clientSeed string) (Commitment, error) {
	if clientSeed != "" {
		if err := ValidateClientSeed(clientSeed); err != nil {
			return Commitment{}, err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.sessions[owner]
	if !ok {
		var err error
		if s, err = k.newSession(clientSeed); err != nil {
			return Commitment{}, err
		}
		k.sessions[owner] = s
	} else if clientSeed != "" {
		s.clientSeed = clientSeed
	}
	return s.commitment(owner), nil
}

// Rotate reveals the active seed and commits a new one.
func (k *Keyring) Rotate(owner, clientSeed string) (revealed, next Commitment, err error) {
	if clientSeed != "" {
		if err := ValidateClientSeed(clientSeed); err != nil {
			return Commitment{}, Commitment{}, err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	old, ok := k.sessions[owner]
	if !ok {
		return Commitment{}, Commitment{}, apperr.NotFound("fair.rotate", "no active seed for %s", owner)
	}
	if clientSeed == "" {
		clientSeed = old.clientSeed
	}
	s, err := k.newSession(clientSeed)
	if err != nil {
		return Commitment{}, Commitment{}, err
	}
	k.sessions[owner] = s

	revealed = old.commitment(owner)
	revealed.ServerSeed = old.serverSeed
	at := k.now()
	revealed.RevealedAt = &at
	return revealed, s.commitment(owner), nil
}

// Next hands out the seed pair for one round and advances the nonce.
func (k *Keyring) Next(owner, clientSeed string) (SeedPair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.sessions[owner]
	if !ok {
		return SeedPair{}, apperr.IllegalState("fair.next", "no published seed commitment; commit one before playing")
	}
	if clientSeed == "" {
		clientSeed = s.clientSeed
	}
	if err := ValidateClientSeed(clientSeed); err != nil {
		return SeedPair{}, err
	}

	pair := SeedPair{
		ServerSeed:     s.serverSeed,
		ServerSeedHash: s.hash,
		ClientSeed:     clientSeed,
		Nonce:          s.nonce,
	}
	s.nonce++
	return pair, nil
}

func (k *Keyring) Active(owner string) (Commitment, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.sessions[owner]
	if !ok {
		return Commitment{}, false
	}
	return s.commitment(owner), true
}

func (k *Keyring) newSession(clientSeed string) (*session, error) {
	seed, hash, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return &session{serverSeed: seed, hash: hash, clientSeed: clientSeed, createdAt: k.now()}, nil
}
