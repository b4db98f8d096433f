// Package eviction keeps the keyspace under a configured memory ceiling by
// removing keys just before a write would cross it. LRU here is approximate:
// candidates come from a small random sample drawn in a single streaming pass
// over the keyspace, because materializing or sorting the full key population
// would itself blow the memory budget the ceiling protects.
package eviction

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/eternalApril/firefly/internal/metrics"
	"github.com/eternalApril/firefly/internal/storage"
)

// ErrOOM fails the triggering write when no key can be evicted. It is fatal
// to that command only, never to the connection.
var ErrOOM = errors.New("OOM command not allowed when used memory > 'maxmemory'")

// Policy selects which keys are eligible and how the victim is chosen.
type Policy int

const (
	NoEviction Policy = iota
	AllKeysRandom
	AllKeysLRU
	VolatileRandom
	VolatileLRU
)

// ParsePolicy maps the configuration names onto policies.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "noeviction":
		return NoEviction, nil
	case "allkeys-random":
		return AllKeysRandom, nil
	case "allkeys-lru":
		return AllKeysLRU, nil
	case "volatile-random":
		return VolatileRandom, nil
	case "volatile-lru":
		return VolatileLRU, nil
	default:
		return NoEviction, fmt.Errorf("invalid eviction policy: %q", name)
	}
}

func (p Policy) volatileOnly() bool { return p == VolatileRandom || p == VolatileLRU }
func (p Policy) lru() bool          { return p == AllKeysLRU || p == VolatileLRU }

// Evictor implements storage.Evictor for one keyspace.
type Evictor struct {
	ks       *storage.Keyspace
	policy   Policy
	sample   int
	maxBytes int64
	rng      *rand.Rand
}

// New returns an evictor enforcing maxBytes (0 = unlimited) with the given
// policy and LRU sample size (default 5).
func New(ks *storage.Keyspace, policy Policy, maxBytes int64, sample int) *Evictor {
	if sample <= 0 {
		sample = 5
	}
	return &Evictor{
		ks:       ks,
		policy:   policy,
		sample:   sample,
		maxBytes: maxBytes,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// EnsureRoom evicts single keys until the pending write of delta bytes fits
// under the ceiling, or fails with ErrOOM when the policy forbids eviction
// or the eligible population is exhausted.
func (e *Evictor) EnsureRoom(delta int64) error {
	if e.maxBytes == 0 {
		return nil
	}
	for e.ks.UsedBytes()+delta > e.maxBytes {
		if e.policy == NoEviction {
			return ErrOOM
		}
		victim, ok := e.pickVictim()
		if !ok {
			return ErrOOM
		}
		e.ks.Delete(victim)
		metrics.EvictedKeys.Inc()
	}
	return nil
}

// pickVictim draws a reservoir sample of eligible keys from the keyspace's
// natural iteration order and returns the one with the oldest access marker
// (or, for the random policies, a uniformly chosen one via a reservoir of
// size one).
func (e *Evictor) pickVictim() (string, bool) {
	size := e.sample
	if !e.policy.lru() {
		size = 1
	}

	type candidate struct {
		key        string
		lastAccess int64
	}
	reservoir := make([]candidate, 0, size)
	seen := 0

	e.ks.ForEachMeta(func(key string, hasTTL bool, lastAccess int64) bool {
		if e.policy.volatileOnly() && !hasTTL {
			return true
		}
		seen++
		if len(reservoir) < size {
			reservoir = append(reservoir, candidate{key, lastAccess})
			return true
		}
		if j := e.rng.Intn(seen); j < size {
			reservoir[j] = candidate{key, lastAccess}
		}
		return true
	})

	if len(reservoir) == 0 {
		return "", false
	}

	oldest := reservoir[0]
	for _, c := range reservoir[1:] {
		if c.lastAccess < oldest.lastAccess {
			oldest = c
		}
	}
	return oldest.key, true
}
