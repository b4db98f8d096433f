package resp

import (
	"errors"
	"fmt"
)

// ErrProtocol marks a malformed frame. It is fatal for the connection:
// the decoder's cursor can no longer be trusted once framing is lost.
var ErrProtocol = errors.New("protocol error")

// Decoder incrementally parses the client request stream into commands.
//
// Requests arrive as multibulk frames: an array header giving the element
// count, followed by that many bulk strings. The decoder keeps a cursor into
// its receive buffer and suspends mid-frame whenever fewer bytes are
// available than the current header demands; the next Feed resumes exactly
// where parsing stopped. At most one partially parsed command is in flight,
// and argument bytes are copied out only once their full length has arrived.
//
// For debugging convenience the decoder also accepts inline (telnet-style)
// requests: any line that does not start with '*' is tokenized on
// whitespace, honoring single and double quotes.
type Decoder struct {
	buf []byte
	pos int

	inFrame bool
	want    int      // elements remaining in the current multibulk frame
	args    [][]byte // materialized arguments so far
	bulkLen int      // payload length of the pending bulk string, -1 = awaiting header

	limits Limits
}

// NewDecoder returns a decoder enforcing the given frame limits.
func NewDecoder(limits Limits) *Decoder {
	return &Decoder{
		bulkLen: -1,
		limits:  limits,
	}
}

// Feed appends freshly read bytes to the receive buffer. Consumed bytes are
// compacted away first so the buffer never grows past one frame plus one
// read chunk.
func (d *Decoder) Feed(p []byte) {
	if d.pos > 0 {
		n := copy(d.buf, d.buf[d.pos:])
		d.buf = d.buf[:n]
		d.pos = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered reports how many unparsed bytes are waiting in the buffer.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.pos
}

// Next returns the next complete command as its raw argument list, with the
// command name in slot zero. It returns (nil, nil) when the buffered bytes do
// not yet complete a frame. Any returned error wraps ErrProtocol.
func (d *Decoder) Next() ([][]byte, error) {
	for {
		if !d.inFrame {
			if d.Buffered() == 0 {
				return nil, nil
			}
			if d.buf[d.pos] != TypeArray {
				args, err := d.nextInline()
				if err != nil || args != nil {
					return args, err
				}
				if d.Buffered() == 0 {
					return nil, nil
				}
				continue // blank inline line consumed, keep going
			}

			line, ok := d.line()
			if !ok {
				return nil, nil
			}
			n, err := parseHeaderInt(line[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid multibulk length", ErrProtocol)
			}
			if n < -1 || n > int64(d.limits.MaxArrayLen) {
				return nil, fmt.Errorf("%w: invalid multibulk length", ErrProtocol)
			}
			d.consume(len(line) + 2)
			if n <= 0 {
				continue // *-1 and *0 carry no command
			}
			d.inFrame = true
			d.want = int(n)
			d.args = make([][]byte, 0, n)
			d.bulkLen = -1
			continue
		}

		if d.bulkLen < 0 {
			if d.Buffered() == 0 {
				return nil, nil
			}
			if d.buf[d.pos] != TypeBulkString {
				return nil, fmt.Errorf("%w: expected '$', got %q", ErrProtocol, d.buf[d.pos])
			}
			line, ok := d.line()
			if !ok {
				return nil, nil
			}
			n, err := parseHeaderInt(line[1:])
			if err != nil || n < -1 || n > int64(d.limits.MaxBulkSize) {
				return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
			}
			d.consume(len(line) + 2)
			if n == -1 {
				// $-1 is the null sentinel: a nil argument with no
				// payload line following.
				if args := d.appendArg(nil); args != nil {
					return args, nil
				}
				continue
			}
			d.bulkLen = int(n)
			continue
		}

		// Bulk payload: wait until the declared length plus CRLF is buffered,
		// then copy the argument out in one piece.
		if d.Buffered() < d.bulkLen+2 {
			return nil, nil
		}
		end := d.pos + d.bulkLen
		if d.buf[end] != '\r' || d.buf[end+1] != '\n' {
			return nil, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
		}
		arg := make([]byte, d.bulkLen)
		copy(arg, d.buf[d.pos:end])
		d.consume(d.bulkLen + 2)
		if args := d.appendArg(arg); args != nil {
			return args, nil
		}
	}
}

// appendArg records a completed argument and returns the finished command
// when it was the frame's last element.
func (d *Decoder) appendArg(arg []byte) [][]byte {
	d.args = append(d.args, arg)
	d.bulkLen = -1
	if len(d.args) == d.want {
		args := d.args
		d.inFrame = false
		d.args = nil
		return args
	}
	return nil
}

// line returns the bytes from the cursor up to the next CRLF, or ok=false
// when the terminator has not arrived yet.
func (d *Decoder) line() ([]byte, bool) {
	buf := d.buf
	for i := d.pos; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[d.pos:i], true
		}
	}
	return nil, false
}

func (d *Decoder) consume(n int) {
	d.pos += n
}

// parseHeaderInt parses a length header strictly: decimal digits with an
// optional leading minus, no whitespace, no empty input.
func parseHeaderInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty header")
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i = 1
		if len(b) == 1 {
			return 0, errors.New("bare minus")
		}
	}
	var n int64
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int64(c-'0')
		if n > 1<<40 {
			return 0, errors.New("header out of range")
		}
	}
	if neg {
		n = -n
	}
	return n, nil
}
