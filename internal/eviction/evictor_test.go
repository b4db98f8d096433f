package eviction

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eternalApril/firefly/internal/storage"
)

type testClock struct {
	ms int64
}

func (c *testClock) now() int64       { return c.ms }
func (c *testClock) advance(ms int64) { c.ms += ms }

func newTestKeyspace() (*storage.Keyspace, *testClock) {
	ks := storage.NewKeyspace()
	clock := &testClock{ms: 1_000_000}
	ks.SetClock(clock.now)
	return ks, clock
}

func fill(t *testing.T, ks *storage.Keyspace, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := ks.Put(fmt.Sprintf("key%d", i), storage.TypeString, "value", 0); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNoEvictionReturnsOOM(t *testing.T) {
	ks, _ := newTestKeyspace()
	fill(t, ks, 3)

	ev := New(ks, NoEviction, ks.UsedBytes(), 5)
	ks.SetEvictor(ev)

	err := ks.Put("one-more", storage.TypeString, "value", 0)
	if !errors.Is(err, ErrOOM) {
		t.Fatalf("got %v, want ErrOOM", err)
	}
	if ks.Len() != 3 {
		t.Fatalf("failed write must not change the keyspace, len=%d", ks.Len())
	}
}

func TestUnlimitedNeverEvicts(t *testing.T) {
	ks, _ := newTestKeyspace()
	ev := New(ks, AllKeysLRU, 0, 5)
	ks.SetEvictor(ev)

	fill(t, ks, 50)
	if ks.Len() != 50 {
		t.Fatalf("len = %d, want 50", ks.Len())
	}
}

func TestEvictionFreesExactlyEnough(t *testing.T) {
	ks, _ := newTestKeyspace()
	fill(t, ks, 3)

	// Ceiling fits the three resident keys and nothing more: adding a
	// same-sized fourth must evict exactly one.
	ev := New(ks, AllKeysRandom, ks.UsedBytes(), 5)
	ks.SetEvictor(ev)

	if err := ks.Put("key3", storage.TypeString, "value", 0); err != nil {
		t.Fatal(err)
	}
	if ks.Len() != 3 {
		t.Fatalf("len = %d, want 3 (one eviction)", ks.Len())
	}
	if !ks.Exists("key3") {
		t.Fatal("the new key itself must be resident")
	}
}

func TestOverwriteUnderPressureKeepsAccountingExact(t *testing.T) {
	ks, _ := newTestKeyspace()
	if err := ks.Put("only", storage.TypeString, "value", 0); err != nil {
		t.Fatal(err)
	}

	// The sole resident key is the only possible victim, so growing it
	// past the ceiling evicts the entry being overwritten.
	ev := New(ks, AllKeysRandom, ks.UsedBytes(), 5)
	ks.SetEvictor(ev)

	grown := "a noticeably larger value than the ceiling allows"
	if err := ks.Put("only", storage.TypeString, grown, 0); err != nil {
		t.Fatal(err)
	}

	fresh, _ := newTestKeyspace()
	if err := fresh.Put("only", storage.TypeString, grown, 0); err != nil {
		t.Fatal(err)
	}
	if ks.UsedBytes() != fresh.UsedBytes() {
		t.Fatalf("used = %d, want %d (accounting drifted across eviction)",
			ks.UsedBytes(), fresh.UsedBytes())
	}
}

func TestLRUPrefersColdKeys(t *testing.T) {
	ks, clock := newTestKeyspace()
	fill(t, ks, 5)

	// Touch every key except key0 at a later time; with a sample covering
	// the whole population, the untouched key is always the victim.
	clock.advance(1_000)
	for i := 1; i < 5; i++ {
		ks.Touch(fmt.Sprintf("key%d", i))
	}

	ev := New(ks, AllKeysLRU, ks.UsedBytes(), 5)
	ks.SetEvictor(ev)

	if err := ks.Put("key5", storage.TypeString, "value", 0); err != nil {
		t.Fatal(err)
	}
	if ks.Exists("key0") {
		t.Fatal("coldest key should have been evicted")
	}
	for i := 1; i < 5; i++ {
		if !ks.Exists(fmt.Sprintf("key%d", i)) {
			t.Fatalf("recently touched key%d evicted", i)
		}
	}
}

func TestVolatileOnlyEligibility(t *testing.T) {
	ks, clock := newTestKeyspace()

	// Two persistent keys, one volatile.
	fill(t, ks, 2)
	if err := ks.Put("volatile", storage.TypeString, "value", clock.now()+60_000); err != nil {
		t.Fatal(err)
	}

	ev := New(ks, VolatileRandom, ks.UsedBytes(), 5)
	ks.SetEvictor(ev)

	if err := ks.Put("extra", storage.TypeString, "value", 0); err != nil {
		t.Fatal(err)
	}
	if ks.Exists("volatile") {
		t.Fatal("only the volatile key was eligible")
	}

	// Eligible population exhausted: the next overflow is an OOM error.
	err := ks.Put("another", storage.TypeString, "longer value to overflow", 0)
	if !errors.Is(err, ErrOOM) {
		t.Fatalf("got %v, want ErrOOM", err)
	}
}

func TestParsePolicy(t *testing.T) {
	valid := map[string]Policy{
		"noeviction":      NoEviction,
		"allkeys-random":  AllKeysRandom,
		"allkeys-lru":     AllKeysLRU,
		"volatile-random": VolatileRandom,
		"volatile-lru":    VolatileLRU,
	}
	for name, want := range valid {
		got, err := ParsePolicy(name)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = (%v, %v)", name, got, err)
		}
	}
	if _, err := ParsePolicy("lfu"); err == nil {
		t.Error("unknown policy should be rejected")
	}
}
