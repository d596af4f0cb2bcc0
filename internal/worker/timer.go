package worker

import (
	"container/heap"
	"time"
)

// Timer is one entry in the worker's timer tree. The spec's
// process_events(deadline) primitive and its "timer tree" are external
// collaborators referenced only by contract (spec.md §1); this is the
// minimal concrete timer structure the default event loop needs to
// give the drain phase (spec §4.4) something real to wait on.
type Timer struct {
	expiry   time.Time
	sentinel bool
	index    int
}

// sentinelTimer is the ever-present housekeeping timer nginx's real
// event loop always keeps armed; its presence alone never counts as
// "work pending" for drain purposes (spec §4.4 "Loop process_events
// until the timer tree is empty (only the sentinel remains)").
func sentinelTimer() *Timer {
	return &Timer{expiry: time.Now().Add(time.Hour), sentinel: true}
}

// timerHeap is a container/heap min-heap ordered by expiry.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expiry.Before(h[j].expiry) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Tree is the worker's timer tree: a min-heap of pending request
// timeouts plus the always-present sentinel.
type Tree struct {
	h        timerHeap
	sentinel *Timer
}

// NewTree returns a timer tree containing only the sentinel.
func NewTree() *Tree {
	t := &Tree{sentinel: sentinelTimer()}
	heap.Init(&t.h)
	heap.Push(&t.h, t.sentinel)
	return t
}

// Add arms a new timer d from now and returns it so the caller can
// Remove it early (e.g. the request it bounds completed).
func (t *Tree) Add(d time.Duration) *Timer {
	tm := &Timer{expiry: time.Now().Add(d)}
	heap.Push(&t.h, tm)
	return tm
}

// Remove cancels a previously-added timer. Removing an already-fired
// or already-removed timer is a no-op.
func (t *Tree) Remove(tm *Timer) {
	if tm == nil || tm.index < 0 || tm.index >= len(t.h) || t.h[tm.index] != tm {
		return
	}
	heap.Remove(&t.h, tm.index)
}

// NextDeadline returns the earliest pending expiry and whether the
// tree is non-empty.
func (t *Tree) NextDeadline() (time.Time, bool) {
	if len(t.h) == 0 {
		return time.Time{}, false
	}
	return t.h[0].expiry, true
}

// popExpired removes and returns every timer whose expiry is <= now,
// the sentinel included (the caller re-arms it — see Tick).
func (t *Tree) popExpired(now time.Time) []*Timer {
	var fired []*Timer
	for len(t.h) > 0 && !t.h[0].expiry.After(now) {
		fired = append(fired, heap.Pop(&t.h).(*Timer))
	}
	return fired
}

// Tick pops every expired timer as of now, re-arms the sentinel if it
// fired, and returns how many *non-sentinel* timers fired — the
// caller's signal that some in-flight operation's deadline elapsed.
func (t *Tree) Tick(now time.Time) int {
	fired := t.popExpired(now)
	count := 0
	for _, f := range fired {
		if f.sentinel {
			t.sentinel = sentinelTimer()
			heap.Push(&t.h, t.sentinel)
			continue
		}
		count++
	}
	return count
}

// Empty reports whether only the sentinel remains (spec §4.4, §8
// invariant 5: drain ends "as soon as its timer tree is empty").
func (t *Tree) Empty() bool {
	return len(t.h) <= 1
}

// Len is the total timer count, sentinel included (diagnostics/tests).
func (t *Tree) Len() int { return len(t.h) }
