package resp

import "fmt"

// Shared replies for the most common results. They are built once and reused;
// callers must treat them as read-only.
var (
	ValueOK         = Value{Type: TypeSimpleString, String: []byte("OK")}
	ValuePong       = Value{Type: TypeSimpleString, String: []byte("PONG")}
	ValueQueued     = Value{Type: TypeSimpleString, String: []byte("QUEUED")}
	ValueNullBulk   = Value{Type: TypeBulkString, IsNull: true}
	ValueNullArray  = Value{Type: TypeArray, IsNull: true}
	ValueEmptyArray = Value{Type: TypeArray, Array: []Value{}}
	ValueZero       = Value{Type: TypeInteger, Integer: 0}
	ValueOne        = Value{Type: TypeInteger, Integer: 1}
)

// MakeSimpleString construct SimpleString Value from string
func MakeSimpleString(s string) Value {
	return Value{
		Type:   TypeSimpleString,
		String: []byte(s),
	}
}

// MakeError construct Error Value from string
func MakeError(s string) Value {
	return Value{
		Type:   TypeError,
		String: []byte(s),
	}
}

// MakeErrorWrongNumberOfArguments construct Error Value for an arity mismatch
func MakeErrorWrongNumberOfArguments(cmd string) Value {
	return MakeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", cmd))
}

// MakeBulkString construct BulkString Value from string
func MakeBulkString(s string) Value {
	return Value{
		Type:   TypeBulkString,
		String: []byte(s),
	}
}

// MakeBulkBytes construct BulkString Value from raw bytes
func MakeBulkBytes(b []byte) Value {
	return Value{
		Type:   TypeBulkString,
		String: b,
	}
}

// MakeInteger construct Integer Value from int64
func MakeInteger(n int64) Value {
	switch n {
	case 0:
		return ValueZero
	case 1:
		return ValueOne
	}
	return Value{
		Type:    TypeInteger,
		Integer: n,
	}
}

// MakeArray creates a standard RESP array containing the provided elements
func MakeArray(values []Value) Value {
	return Value{
		Type:  TypeArray,
		Array: values,
	}
}
