package cycle

import "sync"

// Arena stands in for the spec's per-cycle memory arena (spec.md §3,
// §9 "Arena ownership"). Go's garbage collector already reclaims the
// cycle's backing memory once nothing references it, so Arena does not
// manage allocation — it manages the one thing Go's GC does not:
// *resource* lifetime. The Cycle Builder registers the cycle's log
// sinks here, and destroying the arena runs every registered cleanup,
// deterministically, in LIFO order — mirroring the "destroy the arena"
// step the spec calls out at rollback (§4.2 step 10) and at old-cycle
// diff time (§4.2 step 12). Listener sockets and open files are not
// registered: rollback and diffOldCycle close them explicitly, since a
// listener carried over to a successor cycle must outlive its old
// cycle's arena.
type Arena struct {
	mu        sync.Mutex
	cleanups  []func()
	destroyed bool
}

// NewArena returns an empty arena ready to accumulate cleanups.
func NewArena() *Arena {
	return &Arena{}
}

// Own registers fn to run when the arena is destroyed. Owning a
// resource here is what spec §3 means by "the cycle exclusively owns
// the resources whose lifetime is tied to that arena."
func (a *Arena) Own(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		fn()
		return
	}
	a.cleanups = append(a.cleanups, fn)
}

// Destroy runs every registered cleanup in reverse registration order
// and marks the arena dead. Destroying twice is a no-op, matching the
// idempotence the cleanup timer and rollback path both rely on.
func (a *Arena) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	cleanups := a.cleanups
	a.cleanups = nil
	a.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
