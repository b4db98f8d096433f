package resp

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// Value is the in-memory form of a single RESP frame.
type Value struct {
	String  []byte // SimpleString, Error, BulkString
	Array   []Value
	Integer int64
	Type    byte
	IsNull  bool // nil BulkString and nil Array
}

// Limits bounds a single decoded frame. A header that exceeds them is a
// protocol error and terminates the connection.
type Limits struct {
	MaxBulkSize  int // largest accepted bulk string payload
	MaxArrayLen  int // largest accepted multibulk element count
	MaxInlineLen int // longest accepted inline request line
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxBulkSize:  64 * 1024,
		MaxArrayLen:  8192,
		MaxInlineLen: 8 * 1024,
	}
}
