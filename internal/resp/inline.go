package resp

import "fmt"

// nextInline parses one telnet-style request line. Returns (nil, nil) when no
// full line is buffered yet; a blank line is consumed and reported as nil.
func (d *Decoder) nextInline() ([][]byte, error) {
	line, ok := d.inlineLine()
	if !ok {
		if d.Buffered() > d.limits.MaxInlineLen {
			return nil, fmt.Errorf("%w: too big inline request", ErrProtocol)
		}
		return nil, nil
	}

	tokens, err := tokenizeInline(line)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// inlineLine finds the next LF, tolerating a bare LF as well as CRLF, and
// consumes the line including its terminator.
func (d *Decoder) inlineLine() ([]byte, bool) {
	buf := d.buf
	for i := d.pos; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		end := i
		if end > d.pos && buf[end-1] == '\r' {
			end--
		}
		line := buf[d.pos:end]
		d.consume(i + 1 - d.pos)
		return line, true
	}
	return nil, false
}

// tokenizeInline splits a request line on whitespace, honoring single and
// double quotes with backslash escapes inside them.
func tokenizeInline(line []byte) ([][]byte, error) {
	var tokens [][]byte
	i := 0
	n := len(line)

	for i < n {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}

		if line[i] == '"' || line[i] == '\'' {
			quote := line[i]
			i++
			var tok []byte
			closed := false
			for i < n {
				if line[i] == '\\' && i+1 < n {
					tok = append(tok, unescape(line[i+1]))
					i += 2
					continue
				}
				if line[i] == quote {
					closed = true
					i++
					break
				}
				tok = append(tok, line[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unbalanced quotes in request", ErrProtocol)
			}
			tokens = append(tokens, tok)
			continue
		}

		start := i
		for i < n && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		tok := make([]byte, i-start)
		copy(tok, line[start:i])
		tokens = append(tokens, tok)
	}

	return tokens, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	default:
		return c
	}
}
