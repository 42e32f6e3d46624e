// Package fair implements the commit/reveal randomness used by every game.
//
// The server commits to a secret by publishing its SHA-256 before play. An
// outcome is a pure function of (serverSeed, clientSeed, nonce) so anyone
// holding the revealed secret can recompute it.
package fair

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

const seedBytes = 32

// SeedPair is the full input of one round's randomness.
type SeedPair struct {
	ServerSeed     string `json:"server_seed,omitempty"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int64  `json:"nonce"`
}

// Public strips the secret so the pair can be shown before the round ends.
func (p SeedPair) Public() SeedPair {
	p.ServerSeed = ""
	return p
}

// NewSeed returns a fresh secret and its commitment.
func NewSeed() (serverSeed, serverSeedHash string, err error) {
	b := make([]byte, seedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate seed: %w", err)
	}
	serverSeed = hex.EncodeToString(b)
	return serverSeed, HashSeed(serverSeed), nil
}

// NewSeedPair commits a fresh secret for a single round.
func NewSeedPair(clientSeed string, nonce int64) (SeedPair, error) {
	seed, hash, err := NewSeed()
	if err != nil {
		return SeedPair{}, err
	}
	return SeedPair{ServerSeed: seed, ServerSeedHash: hash, ClientSeed: clientSeed, Nonce: nonce}, nil
}

// HashSeed is the commitment published for a server seed.
func HashSeed(serverSeed string) string {
	h := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(h[:])
}

// VerifyCommitment reports whether a revealed seed matches its published hash.
func VerifyCommitment(serverSeed, serverSeedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSeed(serverSeed)), []byte(serverSeedHash)) == 1
}

// Derive hashes "serverSeed:clientSeed:nonce" and reads the first 8 bytes of
// the digest as a big-endian integer.
func Derive(serverSeed, clientSeed string, nonce int64) uint64 {
	return digest(serverSeed + ":" + clientSeed + ":" + strconv.FormatInt(nonce, 10))
}

func digest(msg string) uint64 {
	h := sha256.Sum256([]byte(msg))
	return binary.BigEndian.Uint64(h[:8])
}

// Units maps raw into [0, 10^digits).
func Units(raw uint64, digits int) uint64 {
	return raw % pow10(digits)
}

// ToUniform maps raw into [0,1) with the given number of decimal digits.
func ToUniform(raw uint64, digits int) float64 {
	return float64(Units(raw, digits)) / float64(pow10(digits))
}

func pow10(digits int) uint64 {
	if digits < 1 {
		digits = 1
	}
	if digits > 18 {
		digits = 18
	}
	return uint64(math.Pow10(digits))
}

// ResultFunc recomputes a variant's headline result from its seeds.
type ResultFunc func(SeedPair) float64

// Verify recomputes a result and compares it with the claim.
func Verify(p SeedPair, claimed, tolerance float64, result ResultFunc) bool {
	if p.Nonce < 0 {
		return false
	}
	return math.Abs(result(p)-claimed) <= tolerance
}

// Stream yields successive values for games that need more than one draw.
// Value i is the digest of "serverSeed:clientSeed:nonce:i".
type Stream struct {
	prefix string
	cursor uint64
}

func (p SeedPair) Stream() *Stream {
	return &Stream{prefix: p.ServerSeed + ":" + p.ClientSeed + ":" + strconv.FormatInt(p.Nonce, 10) + ":"}
}

func (s *Stream) Next() uint64 {
	v := digest(s.prefix + strconv.FormatUint(s.cursor, 10))
	s.cursor++
	return v
}

// IntN returns a uniform value in [0,n) using rejection sampling.
func (s *Stream) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	bound := uint64(n)
	limit := math.MaxUint64 - math.MaxUint64%bound
	for {
		v := s.Next()
		if v < limit {
			return int(v % bound)
		}
	}
}

// Shuffle is a Fisher-Yates shuffle driven by the stream.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, s.IntN(i+1))
	}
}

// Float64 returns a value in [0,1) with 53 bits of precision.
func (s *Stream) Float64() float64 {
	return float64(s.Next()>>11) / float64(uint64(1)<<53)
}
