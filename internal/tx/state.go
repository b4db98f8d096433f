// Package tx implements optimistic-locking command batching: WATCH records
// per-key version snapshots, MULTI queues commands, and EXEC re-checks every
// snapshot before running the queue. No lock is ever held while watching;
// correctness comes from versions being bumped on every mutation and from
// EXEC's check-then-run sequence executing inside the engine's command-wide
// critical section.
package tx

import (
	"errors"

	"github.com/eternalApril/firefly/internal/metrics"
	"github.com/eternalApril/firefly/internal/resp"
)

var (
	ErrNestedMulti      = errors.New("MULTI calls can not be nested")
	ErrWatchInsideMulti = errors.New("WATCH inside MULTI is not allowed")
	ErrExecWithoutMulti = errors.New("EXEC without MULTI")
	ErrDiscardNoMulti   = errors.New("DISCARD without MULTI")
	ErrExecAborted      = errors.New("EXECABORT Transaction discarded because of previous errors")
)

// Versioner is the storage engine slice the coordinator depends on.
type Versioner interface {
	VersionOf(key string) uint64
}

// QueuedCommand is one deferred command awaiting EXEC.
type QueuedCommand struct {
	Name string
	Args []resp.Value
}

// State is the per-connection transaction state. It is created lazily on the
// first WATCH or MULTI and cleared by EXEC, DISCARD, or connection close.
type State struct {
	inMulti bool
	queue   []QueuedCommand
	watches map[string]uint64 // key -> version at WATCH time
	errored bool              // a queued command failed validation; gates EXEC
}

func NewState() *State {
	return &State{}
}

// InMulti reports whether the connection is queuing.
func (s *State) InMulti() bool { return s.inMulti }

// Watch snapshots the current version of each key. Repeatable; accumulates.
func (s *State) Watch(v Versioner, keys ...string) error {
	if s.inMulti {
		return ErrWatchInsideMulti
	}
	if s.watches == nil {
		s.watches = make(map[string]uint64, len(keys))
	}
	for _, key := range keys {
		s.watches[key] = v.VersionOf(key)
	}
	return nil
}

// Unwatch clears only the watch set. Always succeeds, in or out of MULTI.
func (s *State) Unwatch() {
	s.watches = nil
}

// Multi enters queuing mode. Watches taken earlier remain armed.
func (s *State) Multi() error {
	if s.inMulti {
		return ErrNestedMulti
	}
	s.inMulti = true
	s.queue = nil
	s.errored = false
	return nil
}

// Queue appends a command to the transaction.
func (s *State) Queue(name string, args []resp.Value) {
	s.queue = append(s.queue, QueuedCommand{Name: name, Args: args})
}

// MarkError flags the transaction so EXEC aborts. Set when a command queued
// during MULTI fails validation; the command stream itself continues.
func (s *State) MarkError() {
	s.errored = true
}

// Discard drops the queue, the watches, and the error flag.
func (s *State) Discard() error {
	if !s.inMulti {
		return ErrDiscardNoMulti
	}
	s.reset()
	return nil
}

// Close clears all transaction state. Called when the connection goes away.
func (s *State) Close() {
	s.reset()
}

// Exec re-checks every watched key's version against its WATCH-time
// snapshot, then runs the queue in order through run, collecting each
// command's individual result; a failing command records its error in its
// slot and never stops the rest. A version mismatch (including a key deleted
// or created since WATCH) yields a null array without running anything; a
// queue-time validation error yields ErrExecAborted. All state is cleared
// either way.
//
// The caller must hold the engine's critical section across the whole call.
func (s *State) Exec(v Versioner, run func(name string, args []resp.Value) resp.Value) (resp.Value, error) {
	if !s.inMulti {
		return resp.Value{}, ErrExecWithoutMulti
	}

	for key, seen := range s.watches {
		if v.VersionOf(key) != seen {
			s.reset()
			metrics.WatchConflicts.Inc()
			return resp.ValueNullArray, nil
		}
	}

	if s.errored {
		s.reset()
		return resp.Value{}, ErrExecAborted
	}

	results := make([]resp.Value, len(s.queue))
	for i, qc := range s.queue {
		results[i] = run(qc.Name, qc.Args)
	}
	s.reset()
	return resp.MakeArray(results), nil
}

func (s *State) reset() {
	s.inMulti = false
	s.queue = nil
	s.watches = nil
	s.errored = false
}
