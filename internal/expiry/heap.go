// Package expiry proactively deletes keys whose TTL has passed, without ever
// scanning the full keyspace. It keeps a min-heap of (deadline, key) pairs
// that is allowed to go stale: whenever a key's authoritative expiration
// changes, the old heap entry is simply left behind and discarded the next
// time it is popped, so no mutation ever pays for an O(n) heap search.
package expiry

import "container/heap"

// entry is one indexed deadline. Several entries for the same key may
// coexist; only the keyspace's expiration field is ground truth.
type entry struct {
	at  int64 // absolute deadline, ms
	key string
}

type entryHeap []entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].at < h[j].at }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *entryHeap) push(e entry) { heap.Push(h, e) }
func (h *entryHeap) pop() entry   { return heap.Pop(h).(entry) }
