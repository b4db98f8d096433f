package storage

import "time"

// ExpiryIndex receives every authoritative expiration change so the active
// sweeper can index it. Implementations may keep stale entries; the keyspace
// remains the single source of truth.
type ExpiryIndex interface {
	Add(key string, expireAt int64)
	Clear()
}

// Evictor is consulted before a write grows the keyspace. It either makes
// room (by deleting keys through the keyspace) or reports an out-of-memory
// error which fails that single write.
type Evictor interface {
	EnsureRoom(delta int64) error
}

// Keyspace owns the key to entry mapping and everything derived from it:
// per-key expiration, version counters, access recency, and byte accounting.
// All other components mutate keys only through these methods.
//
// Keyspace is not safe for concurrent use by itself; the command engine
// serializes access with a single command-wide critical section.
type Keyspace struct {
	data     map[string]*Entry
	versions map[string]uint64 // survives deletion so WATCH sees delete/recreate
	used     int64

	index   ExpiryIndex
	evictor Evictor
	now     func() int64 // wall clock in ms, swappable in tests
}

// NewKeyspace returns an empty keyspace using the system clock.
func NewKeyspace() *Keyspace {
	return &Keyspace{
		data:     make(map[string]*Entry),
		versions: make(map[string]uint64),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// SetExpiryIndex wires the active-expiry index. Must be called before serving.
func (ks *Keyspace) SetExpiryIndex(idx ExpiryIndex) { ks.index = idx }

// SetEvictor wires the eviction policy. Must be called before serving.
func (ks *Keyspace) SetEvictor(ev Evictor) { ks.evictor = ev }

// SetClock replaces the time source. Tests use this to advance time without
// sleeping.
func (ks *Keyspace) SetClock(now func() int64) { ks.now = now }

// Now returns the keyspace's current time in ms.
func (ks *Keyspace) Now() int64 { return ks.now() }

// Get returns the live payload and type of key. Performs lazy expiry: a key
// whose deadline has passed is deleted as a side effect and reported absent.
// Refreshes the access marker but never the version.
func (ks *Keyspace) Get(key string) (any, DataType, bool) {
	e, ok := ks.liveEntry(key)
	if !ok {
		return nil, 0, false
	}
	e.LastAccess = ks.now()
	return e.Value, e.Type, true
}

// Put creates or replaces the entry under key. The expiration is reset to
// expireAt (0 = none), the version is bumped, and the access marker is
// refreshed. Type enforcement is the caller's job: overwriting with a
// different type tag is always permitted here.
func (ks *Keyspace) Put(key string, t DataType, v any, expireAt int64) error {
	ks.expireIfDue(key)

	size := entrySize(key, t, v)
	delta := size
	if old, ok := ks.data[key]; ok {
		delta -= old.size
	}
	if err := ks.ensureRoom(delta); err != nil {
		return err
	}
	// Room-making may have evicted the very entry being replaced, so the
	// replaced size is re-read before accounting.
	delta = size
	if old, ok := ks.data[key]; ok {
		delta -= old.size
	}

	ks.data[key] = &Entry{
		Type:       t,
		Value:      v,
		ExpireAt:   expireAt,
		LastAccess: ks.now(),
		size:       size,
	}
	ks.used += delta
	ks.bumpVersion(key)
	if expireAt != 0 && ks.index != nil {
		ks.index.Add(key, expireAt)
	}
	return nil
}

// StoreValue updates the payload of key while preserving its expiration,
// creating the entry if absent. This is the write path for data-type
// mutations such as APPEND, HSET, or LPUSH.
func (ks *Keyspace) StoreValue(key string, t DataType, v any) error {
	ks.expireIfDue(key)

	old, ok := ks.data[key]
	if !ok {
		return ks.Put(key, t, v, 0)
	}
	size := entrySize(key, t, v)
	if err := ks.ensureRoom(size - old.size); err != nil {
		return err
	}
	if _, resident := ks.data[key]; !resident {
		// Room-making evicted this key; the write proceeds as a fresh
		// insert and the preserved expiration is gone with the entry.
		return ks.Put(key, t, v, 0)
	}
	ks.used += size - old.size
	old.Type = t
	old.Value = v
	old.LastAccess = ks.now()
	old.size = size
	ks.bumpVersion(key)
	return nil
}

// Delete removes the entry if present. The key's version is bumped even
// though the entry is gone, so a watcher observes deletion as a change.
func (ks *Keyspace) Delete(key string) bool {
	e, ok := ks.data[key]
	if !ok {
		return false
	}
	ks.remove(key, e)
	return true
}

// SetExpiration updates only the expiration field (0 clears it) and bumps the
// version. Returns false when the key is absent or already expired.
func (ks *Keyspace) SetExpiration(key string, expireAt int64) bool {
	e, ok := ks.liveEntry(key)
	if !ok {
		return false
	}
	e.ExpireAt = expireAt
	ks.bumpVersion(key)
	if expireAt != 0 && ks.index != nil {
		ks.index.Add(key, expireAt)
	}
	return true
}

// Touch refreshes the access marker without altering payload or version.
// Read-only commands use it for recency tracking.
func (ks *Keyspace) Touch(key string) bool {
	e, ok := ks.liveEntry(key)
	if !ok {
		return false
	}
	e.LastAccess = ks.now()
	return true
}

// VersionOf returns the key's current version, 0 if it was never written.
func (ks *Keyspace) VersionOf(key string) uint64 {
	ks.expireIfDue(key)
	return ks.versions[key]
}

// TypeOf reports the type tag of a live key.
func (ks *Keyspace) TypeOf(key string) (DataType, bool) {
	e, ok := ks.liveEntry(key)
	if !ok {
		return 0, false
	}
	return e.Type, true
}

// Exists reports whether key is present and unexpired.
func (ks *Keyspace) Exists(key string) bool {
	_, ok := ks.liveEntry(key)
	return ok
}

// PTTL returns the remaining lifetime in ms and its status.
func (ks *Keyspace) PTTL(key string) (int64, TTLStatus) {
	e, ok := ks.liveEntry(key)
	if !ok {
		return 0, TTLNotFound
	}
	if e.ExpireAt == 0 {
		return 0, TTLNoExpiry
	}
	return e.ExpireAt - ks.now(), TTLActive
}

// ExpireTime returns the authoritative absolute deadline of key, with
// ok=false when the key is absent or carries no TTL. The active sweeper uses
// this to detect stale heap entries; no lazy expiry happens here.
func (ks *Keyspace) ExpireTime(key string) (int64, bool) {
	e, ok := ks.data[key]
	if !ok || e.ExpireAt == 0 {
		return 0, false
	}
	return e.ExpireAt, true
}

// Persist clears the expiration of key, bumping its version. Returns false
// when the key is absent or had no TTL.
func (ks *Keyspace) Persist(key string) bool {
	e, ok := ks.liveEntry(key)
	if !ok || e.ExpireAt == 0 {
		return false
	}
	e.ExpireAt = 0
	ks.bumpVersion(key)
	return true
}

// Rename moves the entry under key to newkey, replacing any previous entry
// there. Both keys' versions are bumped. Returns false if key is absent.
func (ks *Keyspace) Rename(key, newkey string) bool {
	e, ok := ks.liveEntry(key)
	if !ok {
		return false
	}
	if old, exists := ks.data[newkey]; exists {
		ks.remove(newkey, old)
	}
	delete(ks.data, key)
	ks.used += entrySize(newkey, e.Type, e.Value) - e.size
	e.size = entrySize(newkey, e.Type, e.Value)
	ks.data[newkey] = e
	ks.bumpVersion(key)
	ks.bumpVersion(newkey)
	if e.ExpireAt != 0 && ks.index != nil {
		ks.index.Add(newkey, e.ExpireAt)
	}
	return true
}

// RenameNX renames only when newkey does not exist. The int result follows
// the RENAMENX convention (1 = renamed, 0 = target exists); ok=false when
// the source is absent.
func (ks *Keyspace) RenameNX(key, newkey string) (int64, bool) {
	if !ks.Exists(key) {
		return 0, false
	}
	if ks.Exists(newkey) {
		return 0, true
	}
	ks.Rename(key, newkey)
	return 1, true
}

// Keys returns all live keys matching the glob pattern.
func (ks *Keyspace) Keys(pattern string) []string {
	var out []string
	for key := range ks.data {
		if ks.expireIfDue(key) {
			continue
		}
		if globMatch(pattern, key) {
			out = append(out, key)
		}
	}
	return out
}

// Len returns the number of resident keys, including not-yet-reaped expired
// ones.
func (ks *Keyspace) Len() int { return len(ks.data) }

// UsedBytes returns the accounted size of all resident entries.
func (ks *Keyspace) UsedBytes() int64 { return ks.used }

// ForEach visits every live entry with its persisted attributes. The
// snapshot layer is the main consumer; versions and access markers are
// deliberately not exposed. Returning false stops the walk.
func (ks *Keyspace) ForEach(fn func(key string, t DataType, v any, expireAt int64) bool) {
	now := ks.now()
	for key, e := range ks.data {
		if e.ExpireAt != 0 && e.ExpireAt <= now {
			continue
		}
		if !fn(key, e.Type, e.Value, e.ExpireAt) {
			return
		}
	}
}

// ForEachMeta visits every resident key with the metadata eviction sampling
// needs. Returning false stops the walk.
func (ks *Keyspace) ForEachMeta(fn func(key string, hasTTL bool, lastAccess int64) bool) {
	for key, e := range ks.data {
		if !fn(key, e.ExpireAt != 0, e.LastAccess) {
			return
		}
	}
}

// Flush drops every entry, version counter, and indexed expiration.
func (ks *Keyspace) Flush() {
	ks.data = make(map[string]*Entry)
	ks.versions = make(map[string]uint64)
	ks.used = 0
	if ks.index != nil {
		ks.index.Clear()
	}
}

// liveEntry returns the entry for key after lazy expiry.
func (ks *Keyspace) liveEntry(key string) (*Entry, bool) {
	e, ok := ks.data[key]
	if !ok {
		return nil, false
	}
	if e.ExpireAt != 0 && e.ExpireAt <= ks.now() {
		ks.remove(key, e)
		return nil, false
	}
	return e, true
}

// expireIfDue reaps key if its deadline has passed. Reports whether it did.
func (ks *Keyspace) expireIfDue(key string) bool {
	e, ok := ks.data[key]
	if !ok {
		return false
	}
	if e.ExpireAt != 0 && e.ExpireAt <= ks.now() {
		ks.remove(key, e)
		return true
	}
	return false
}

func (ks *Keyspace) remove(key string, e *Entry) {
	delete(ks.data, key)
	ks.used -= e.size
	ks.bumpVersion(key)
}

func (ks *Keyspace) bumpVersion(key string) {
	ks.versions[key]++
}

func (ks *Keyspace) ensureRoom(delta int64) error {
	if delta <= 0 || ks.evictor == nil {
		return nil
	}
	return ks.evictor.EnsureRoom(delta)
}
