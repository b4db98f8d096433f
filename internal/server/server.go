package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/eternalApril/firefly/internal/metrics"
	"github.com/eternalApril/firefly/internal/resp"
)

// Server accepts client connections and runs one session per connection.
type Server struct {
	engine *Engine
	limits resp.Limits
	logger *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	closed   chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(engine *Engine, limits resp.Limits, logger *zap.Logger) *Server {
	return &Server{
		engine: engine,
		limits: limits,
		logger: logger,
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds addr and launches the accept loop. Tests pass "127.0.0.1:0"
// and read the bound address back with Addr.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.trackConn(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	metrics.ConnectionsOpened.Inc()
	peer := NewPeer(conn, s.limits)
	sess := NewSession(s.engine)
	defer sess.Close()
	defer peer.Close()

	for {
		raw, err := peer.ReadCommand()
		if err != nil {
			if errors.Is(err, resp.ErrProtocol) {
				// Protocol errors are fatal: report and drop the connection.
				peer.Send(resp.MakeError("ERR " + err.Error()))
				peer.Flush()
				s.logger.Warn("protocol error",
					zap.String("peer", peer.RemoteAddr()), zap.Error(err))
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read failed",
					zap.String("peer", peer.RemoteAddr()), zap.Error(err))
			}
			return
		}
		if len(raw) == 0 {
			continue
		}

		name := upperCommand(raw[0])
		args := make([]resp.Value, len(raw)-1)
		for i, arg := range raw[1:] {
			args[i] = resp.MakeBulkBytes(arg)
		}

		// The reply stays buffered until ReadCommand next needs the
		// socket, so pipelined batches flush in one write.
		if err := peer.Send(sess.Dispatch(name, args)); err != nil {
			return
		}
	}
}

// Shutdown stops accepting and waits for in-flight connections until ctx
// expires, at which point the remaining connections are closed out from
// under their blocking reads. The engine is always stopped, so the final
// snapshot is written even when shutdown had to force connections off.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.closed)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
	}
	s.engine.Shutdown()
	return err
}

func upperCommand(b []byte) string {
	buf := make([]byte, len(b))
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		buf[i] = c
	}
	return string(buf)
}
