package resp

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// Pre-encoded wire forms of the most frequent replies. Writing these avoids
// re-serializing the same handful of bytes on nearly every command, which
// matters on the memory budget this server targets.
var (
	rawOK         = []byte("+OK\r\n")
	rawPong       = []byte("+PONG\r\n")
	rawQueued     = []byte("+QUEUED\r\n")
	rawNullBulk   = []byte("$-1\r\n")
	rawNullArray  = []byte("*-1\r\n")
	rawEmptyArray = []byte("*0\r\n")
	rawZero       = []byte(":0\r\n")
	rawOne        = []byte(":1\r\n")
	crlf          = []byte("\r\n")
)

// Encoder serializes RESP Values into an output stream. Writes are buffered;
// the caller decides when to Flush.
type Encoder struct {
	writer *bufio.Writer
}

// NewEncoder initializes an Encoder with a buffered writer
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: bufio.NewWriter(w)}
}

// Write serializes a RESP Value into the buffer without flushing.
func (e *Encoder) Write(v Value) error {
	if raw := staticBytes(v); raw != nil {
		_, err := e.writer.Write(raw)
		return err
	}

	var err error
	switch v.Type {
	case TypeInteger:
		err = e.writeHeader(':', v.Integer)

	case TypeSimpleString:
		err = e.writeRaw('+', v.String)

	case TypeError:
		err = e.writeRaw('-', v.String)

	case TypeBulkString:
		if err = e.writeHeader('$', int64(len(v.String))); err == nil {
			if _, err = e.writer.Write(v.String); err == nil {
				_, err = e.writer.Write(crlf)
			}
		}

	case TypeArray:
		if err = e.writeHeader('*', int64(len(v.Array))); err == nil {
			for _, el := range v.Array {
				if err = e.Write(el); err != nil {
					break
				}
			}
		}
	}

	return err
}

// Flush sends all buffered bytes to the underlying writer.
func (e *Encoder) Flush() error {
	return e.writer.Flush()
}

// staticBytes returns the pre-encoded form of v, or nil if v has none.
func staticBytes(v Value) []byte {
	switch v.Type {
	case TypeSimpleString:
		switch {
		case bytes.Equal(v.String, ValueOK.String):
			return rawOK
		case bytes.Equal(v.String, ValuePong.String):
			return rawPong
		case bytes.Equal(v.String, ValueQueued.String):
			return rawQueued
		}
	case TypeInteger:
		switch v.Integer {
		case 0:
			return rawZero
		case 1:
			return rawOne
		}
	case TypeBulkString:
		if v.IsNull {
			return rawNullBulk
		}
	case TypeArray:
		if v.IsNull {
			return rawNullArray
		}
		if len(v.Array) == 0 {
			return rawEmptyArray
		}
	}
	return nil
}

// writeHeader writes the type prefix, numeric value, and CRLF
func (e *Encoder) writeHeader(prefix byte, n int64) error {
	if err := e.writer.WriteByte(prefix); err != nil {
		return err
	}
	e.appendInt(n)
	_, err := e.writer.Write(crlf)
	return err
}

// writeRaw writes the type prefix, raw bytes, and CRLF (SimpleString, Error)
func (e *Encoder) writeRaw(prefix byte, b []byte) error {
	if err := e.writer.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := e.writer.Write(b); err != nil {
		return err
	}
	_, err := e.writer.Write(crlf)
	return err
}

// appendInt converts an integer to a string and writes it to the buffer
func (e *Encoder) appendInt(n int64) {
	b := e.writer.AvailableBuffer()
	b = strconv.AppendInt(b, n, 10)
	e.writer.Write(b) //nolint:errcheck
}

// EncodeCommand serializes a request the way a client would send it: a
// multibulk array with the command name first.
func EncodeCommand(cmd string, args []Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	elements := make([]Value, 1+len(args))
	elements[0] = MakeBulkString(cmd)
	copy(elements[1:], args)

	if err := enc.Write(MakeArray(elements)); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
