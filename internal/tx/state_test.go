package tx

import (
	"errors"
	"testing"

	"github.com/eternalApril/firefly/internal/resp"
)

// fakeVersions is a map-backed Versioner.
type fakeVersions map[string]uint64

func (f fakeVersions) VersionOf(key string) uint64 { return f[key] }

func (f fakeVersions) bump(key string) { f[key]++ }

// runEcho records executed command names and answers +OK.
func runEcho(executed *[]string) func(string, []resp.Value) resp.Value {
	return func(name string, _ []resp.Value) resp.Value {
		*executed = append(*executed, name)
		return resp.ValueOK
	}
}

func TestExecRunsQueueInOrder(t *testing.T) {
	s := NewState()
	v := fakeVersions{}

	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	s.Queue("SET", []resp.Value{resp.MakeBulkString("a"), resp.MakeBulkString("1")})
	s.Queue("GET", []resp.Value{resp.MakeBulkString("a")})

	var executed []string
	result, err := s.Exec(v, runEcho(&executed))
	if err != nil {
		t.Fatal(err)
	}
	if len(executed) != 2 || executed[0] != "SET" || executed[1] != "GET" {
		t.Fatalf("executed %q", executed)
	}
	if result.Type != resp.TypeArray || len(result.Array) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if s.InMulti() {
		t.Fatal("state must be cleared after EXEC")
	}
}

func TestNestedMulti(t *testing.T) {
	s := NewState()
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	if err := s.Multi(); !errors.Is(err, ErrNestedMulti) {
		t.Fatalf("got %v, want ErrNestedMulti", err)
	}
}

func TestExecWithoutMulti(t *testing.T) {
	s := NewState()
	_, err := s.Exec(fakeVersions{}, nil)
	if !errors.Is(err, ErrExecWithoutMulti) {
		t.Fatalf("got %v, want ErrExecWithoutMulti", err)
	}
}

func TestDiscardWithoutMulti(t *testing.T) {
	s := NewState()
	if err := s.Discard(); !errors.Is(err, ErrDiscardNoMulti) {
		t.Fatalf("got %v, want ErrDiscardNoMulti", err)
	}
}

func TestDiscardDropsQueueAndWatches(t *testing.T) {
	s := NewState()
	v := fakeVersions{"k": 3}

	if err := s.Watch(v, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	s.Queue("SET", nil)
	if err := s.Discard(); err != nil {
		t.Fatal(err)
	}

	// A conflicting write after DISCARD must not matter: nothing is watched.
	v.bump("k")
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	var executed []string
	result, err := s.Exec(v, runEcho(&executed))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsNull {
		t.Fatal("EXEC aborted on a watch that DISCARD should have dropped")
	}
}

func TestWatchConflictAbortsExec(t *testing.T) {
	s := NewState()
	v := fakeVersions{"k": 1}

	if err := s.Watch(v, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	s.Queue("SET", nil)

	v.bump("k") // concurrent write between WATCH and EXEC

	var executed []string
	result, err := s.Exec(v, runEcho(&executed))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsNull || result.Type != resp.TypeArray {
		t.Fatalf("conflicting EXEC should yield a null array, got %+v", result)
	}
	if len(executed) != 0 {
		t.Fatalf("queued commands ran despite conflict: %q", executed)
	}
}

func TestWatchSeesDeleteRecreate(t *testing.T) {
	s := NewState()

	// Version counters survive deletion, so delete followed by recreate
	// advances the version twice; the watcher must still conflict.
	v := fakeVersions{"k": 5}
	if err := s.Watch(v, "k"); err != nil {
		t.Fatal(err)
	}
	v.bump("k") // delete
	v.bump("k") // recreate

	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	result, err := s.Exec(v, runEcho(new([]string)))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsNull {
		t.Fatal("delete/recreate must conflict")
	}
}

func TestUnchangedWatchPasses(t *testing.T) {
	s := NewState()
	v := fakeVersions{"k": 7}

	if err := s.Watch(v, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	s.Queue("GET", nil)

	result, err := s.Exec(v, runEcho(new([]string)))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsNull {
		t.Fatal("unchanged watch must not abort")
	}
}

func TestWatchInsideMulti(t *testing.T) {
	s := NewState()
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	if err := s.Watch(fakeVersions{}, "k"); !errors.Is(err, ErrWatchInsideMulti) {
		t.Fatalf("got %v, want ErrWatchInsideMulti", err)
	}
}

func TestErroredQueueAbortsExec(t *testing.T) {
	s := NewState()
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	s.Queue("SET", nil)
	s.MarkError() // an invalid command was rejected at queue time

	var executed []string
	_, err := s.Exec(fakeVersions{}, runEcho(&executed))
	if !errors.Is(err, ErrExecAborted) {
		t.Fatalf("got %v, want ErrExecAborted", err)
	}
	if len(executed) != 0 {
		t.Fatal("aborted EXEC must not run valid queued commands either")
	}
	if s.InMulti() {
		t.Fatal("state must be cleared after aborted EXEC")
	}
}

func TestUnwatch(t *testing.T) {
	s := NewState()
	v := fakeVersions{"k": 1}

	if err := s.Watch(v, "k"); err != nil {
		t.Fatal(err)
	}
	s.Unwatch()
	v.bump("k")

	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	result, err := s.Exec(v, runEcho(new([]string)))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsNull {
		t.Fatal("UNWATCH should have dropped the conflicting watch")
	}
}
