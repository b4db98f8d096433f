package server

import (
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/tx"
)

// Session is the per-connection shell around the engine: it owns the
// transaction state and routes the transaction control commands, which never
// reach the engine's dispatch table.
type Session struct {
	engine *Engine
	tx     *tx.State
}

func NewSession(e *Engine) *Session {
	return &Session{engine: e, tx: tx.NewState()}
}

// Dispatch handles one decoded command. name must already be upper-cased.
func (s *Session) Dispatch(name string, args []resp.Value) resp.Value {
	switch name {
	case "MULTI":
		if len(args) != 0 {
			return resp.MakeErrorWrongNumberOfArguments("multi")
		}
		if err := s.tx.Multi(); err != nil {
			return resp.MakeError("ERR " + err.Error())
		}
		return resp.ValueOK
	case "EXEC":
		if len(args) != 0 {
			return resp.MakeErrorWrongNumberOfArguments("exec")
		}
		return s.engine.ExecTransaction(s.tx)
	case "DISCARD":
		if len(args) != 0 {
			return resp.MakeErrorWrongNumberOfArguments("discard")
		}
		if err := s.tx.Discard(); err != nil {
			return resp.MakeError("ERR " + err.Error())
		}
		return resp.ValueOK
	case "WATCH":
		if len(args) == 0 {
			return resp.MakeErrorWrongNumberOfArguments("watch")
		}
		keys := make([]string, len(args))
		for i, arg := range args {
			keys[i] = argString(arg)
		}
		if err := s.engine.Watch(s.tx, keys...); err != nil {
			s.tx.MarkError()
			return resp.MakeError("ERR " + err.Error())
		}
		return resp.ValueOK
	case "UNWATCH":
		s.tx.Unwatch()
		return resp.ValueOK
	}

	if s.tx.InMulti() {
		if err := s.engine.Validate(name, len(args)); err != nil {
			s.tx.MarkError()
			return resp.MakeError(err.Error())
		}
		s.tx.Queue(name, args)
		return resp.ValueQueued
	}
	return s.engine.Execute(name, args)
}

// Close releases the session's transaction state, dropping any open MULTI
// block and all watches.
func (s *Session) Close() {
	s.tx.Close()
}
