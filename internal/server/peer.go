package server

import (
	"net"

	"github.com/eternalApril/firefly/internal/resp"
)

// Peer wraps a client connection with the incremental protocol codec. Reads
// go through the resumable decoder so partial frames survive across Read
// calls; writes accumulate in the encoder until Flush.
type Peer struct {
	conn    net.Conn
	dec     *resp.Decoder
	enc     *resp.Encoder
	readBuf []byte
}

func NewPeer(conn net.Conn, limits resp.Limits) *Peer {
	return &Peer{
		conn:    conn,
		dec:     resp.NewDecoder(limits),
		enc:     resp.NewEncoder(conn),
		readBuf: make([]byte, 16*1024),
	}
}

// ReadCommand blocks until one complete command is available. Pending
// replies are flushed before blocking on the socket, so pipelined commands
// batch their output while a client waiting on a reply always receives it.
// A protocol error is returned as-is and is fatal for the connection.
func (p *Peer) ReadCommand() ([][]byte, error) {
	for {
		args, err := p.dec.Next()
		if err != nil {
			return nil, err
		}
		if args != nil {
			return args, nil
		}
		if err := p.enc.Flush(); err != nil {
			return nil, err
		}
		n, err := p.conn.Read(p.readBuf)
		if n > 0 {
			p.dec.Feed(p.readBuf[:n])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Peer) Send(v resp.Value) error {
	return p.enc.Write(v)
}

func (p *Peer) Flush() error {
	return p.enc.Flush()
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
