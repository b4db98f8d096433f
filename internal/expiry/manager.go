package expiry

// Store is the slice of the storage engine the sweeper needs: the
// authoritative deadline for cross-checking popped entries, and deletion.
type Store interface {
	// ExpireTime returns the current absolute deadline of key; ok=false when
	// the key is absent or has no TTL.
	ExpireTime(key string) (int64, bool)
	// Delete removes the key, bumping its version.
	Delete(key string) bool
}

// Manager indexes key deadlines and runs the probabilistic active sweep.
// It implements storage.ExpiryIndex.
type Manager struct {
	heap   entryHeap
	store  Store
	sample int // entries popped per sweep batch
}

// repeatThreshold is the expired fraction above which a sweep batch signals
// enough backlog to warrant another batch immediately.
const repeatThreshold = 0.25

// NewManager returns a sweeper popping up to sample entries per batch.
func NewManager(store Store, sample int) *Manager {
	if sample <= 0 {
		sample = 20
	}
	return &Manager{store: store, sample: sample}
}

// Add indexes a new deadline for key. Any previous entry for the same key is
// left in the heap and will be discarded as stale when popped.
func (m *Manager) Add(key string, expireAt int64) {
	m.heap.push(entry{at: expireAt, key: key})
}

// Remove is deliberately a no-op: correctness relies entirely on the
// cross-check against the keyspace when an entry is popped.
func (m *Manager) Remove(key string) {}

// Clear drops the whole index. Used by FLUSHALL.
func (m *Manager) Clear() { m.heap = m.heap[:0] }

// Len returns the number of indexed entries, stale ones included.
func (m *Manager) Len() int { return m.heap.Len() }

// SweepDue pops batches of the oldest entries, deletes the ones whose
// deadline both matches the keyspace and has passed, and repeats while more
// than a quarter of a batch turned out to be real deletions. Returns the
// number of keys deleted.
func (m *Manager) SweepDue(now int64) int {
	deleted := 0
	for {
		checked, reaped, hitFuture := m.sweepBatch(now)
		deleted += reaped
		if hitFuture || checked == 0 {
			break
		}
		if float64(reaped)/float64(checked) <= repeatThreshold {
			break
		}
	}
	return deleted
}

// sweepBatch pops up to the sample count of entries. hitFuture is set when
// the heap's head is a valid entry that is not yet due, which means nothing
// behind it can be due either.
func (m *Manager) sweepBatch(now int64) (checked, reaped int, hitFuture bool) {
	for i := 0; i < m.sample && m.heap.Len() > 0; i++ {
		e := m.heap.pop()
		checked++

		at, ok := m.store.ExpireTime(e.key)
		if !ok || at != e.at {
			continue // stale: key gone or TTL rewritten since indexing
		}
		if e.at > now {
			m.heap.push(e)
			return checked, reaped, true
		}
		if m.store.Delete(e.key) {
			reaped++
		}
	}
	return checked, reaped, false
}

// NearestExpiry reports the ms until the next real deadline, filtering stale
// entries off the heap top. ok=false when nothing with a TTL remains. Used
// for tuning the sweep interval.
func (m *Manager) NearestExpiry(now int64) (int64, bool) {
	for m.heap.Len() > 0 {
		head := m.heap[0]
		at, ok := m.store.ExpireTime(head.key)
		if !ok || at != head.at {
			m.heap.pop()
			continue
		}
		remaining := head.at - now
		if remaining < 0 {
			remaining = 0
		}
		return remaining, true
	}
	return 0, false
}
