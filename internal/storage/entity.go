package storage

// DataType tags the payload shape stored under a key.
type DataType byte

const (
	TypeString DataType = iota + 1
	TypeHash
	TypeList
	TypeSet
	TypeZSet
	TypeStream
	TypeHLL
)

var typeNames = map[DataType]string{
	TypeString: "string",
	TypeHash:   "hash",
	TypeList:   "list",
	TypeSet:    "set",
	TypeZSet:   "zset",
	TypeStream: "stream",
	TypeHLL:    "hyperloglog",
}

// Name returns the wire name reported by TYPE.
func (t DataType) Name() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "none"
}

// Entry is the unit of storage: one typed payload plus the metadata the
// expiry, eviction, and transaction layers need. The payload is owned
// exclusively by the entry; the per-key version counter lives outside the
// entry so it survives deletion (see Keyspace.versions).
type Entry struct {
	Type       DataType
	Value      any
	ExpireAt   int64 // absolute ms since Unix epoch, 0 = no TTL
	LastAccess int64 // ms, refreshed by reads and writes, drives approximate LRU
	size       int64 // accounted bytes, maintained by the keyspace
}

// TTL status results, matching the Redis TTL/PTTL convention.
type TTLStatus int

const (
	TTLNotFound TTLStatus = -2
	TTLNoExpiry TTLStatus = -1
	TTLActive   TTLStatus = 1
)
