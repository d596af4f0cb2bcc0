package cycle

import (
	"log/slog"
	"sync"
	"time"
)

// cleanupInterval is the periodic cleaner's period (spec §4.2 step 12:
// "arm the cleanup timer (30s periodic) if not armed").
const cleanupInterval = 30 * time.Second

// Retainer is the collection of old cycles whose workers have not yet
// exited (spec §3 "Old-cycle retainer"). A periodic cleaner destroys
// each entry's arena once its worker count reaches zero. It places no
// limit on how many cycles it holds.
type Retainer struct {
	mu      sync.Mutex
	cycles  []*Cycle
	armed   bool
	stop    chan struct{}
	log     *slog.Logger
	staleAt map[*Cycle]int // consecutive passes seen with workers > 0
}

// NewRetainer returns an empty, unarmed retainer.
func NewRetainer(log *slog.Logger) *Retainer {
	return &Retainer{log: log, staleAt: make(map[*Cycle]int)}
}

// Enqueue adds a superseded cycle to the retainer and arms the cleanup
// timer if it is not already running.
func (r *Retainer) Enqueue(c *Cycle) {
	r.mu.Lock()
	r.cycles = append(r.cycles, c)
	armNow := !r.armed
	if armNow {
		r.armed = true
		r.stop = make(chan struct{})
	}
	r.mu.Unlock()

	if armNow {
		go r.run(r.stop)
	}
}

// Len reports how many old cycles are currently retained (for tests
// and diagnostics).
func (r *Retainer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cycles)
}

// Sweep runs one pass of the cleaner synchronously: any retained cycle
// whose worker count has dropped to zero is destroyed and removed.
// Exported so tests don't have to wait on the real 30s timer.
func (r *Retainer) Sweep() {
	r.mu.Lock()
	remaining := r.cycles[:0]
	for _, c := range r.cycles {
		if c.WorkerCount() == 0 {
			c.Arena.Destroy()
			delete(r.staleAt, c)
			continue
		}
		r.staleAt[c]++
		if r.staleAt[c] > 0 && r.staleAt[c]%4 == 0 && r.log != nil {
			// SPEC_FULL.md §11 "graceful worker shutdown timeout
			// reporting": purely observational, never forces an exit.
			r.log.Warn("cycle: old generation still has live workers after repeated cleanup passes",
				"generation", c.Generation, "workers", c.WorkerCount(), "passes", r.staleAt[c])
		}
		remaining = append(remaining, c)
	}
	r.cycles = remaining
	r.mu.Unlock()
}

func (r *Retainer) run(stop chan struct{}) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.Sweep()
		case <-stop:
			return
		}
	}
}

// Close stops the cleanup goroutine, if running. Remaining cycles are
// left as-is (their arenas are not force-destroyed).
func (r *Retainer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed {
		close(r.stop)
		r.armed = false
	}
}
