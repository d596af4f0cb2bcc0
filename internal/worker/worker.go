// Package worker implements the worker lifecycle (spec.md §4.4): init,
// the main event-loop phase, graceful drain, and termination.
package worker

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/ankitkulkarni/nginxcore/internal/coremodule"
	"github.com/ankitkulkarni/nginxcore/internal/cycle"
	"github.com/ankitkulkarni/nginxcore/internal/module"
	"github.com/ankitkulkarni/nginxcore/internal/signals"
)

// Handler processes one accepted connection. The HTTP protocol itself
// is out of scope (spec §1); the default used by cmd/nginxcore is a
// minimal one-shot echo handler (one read, one reply, close) purely so
// the worker loop has real, observable traffic to drain.
type Handler func(net.Conn, *Tree)

// Worker owns one cycle and drives its event loop until signaled to
// quit, terminate, or reopen logs (spec §4.4).
type Worker struct {
	Cycle    *cycle.Cycle
	Registry *module.Registry
	Latches  *signals.Latches
	Loop     EventLoop
	Log      *slog.Logger
}

// New constructs a Worker bound to c, building the default
// AcceptLoop over c's listeners with handler.
func New(c *cycle.Cycle, reg *module.Registry, handler Handler) *Worker {
	lns := make([]net.Listener, 0, len(c.Listening))
	for _, l := range c.Listening {
		if l.Listener != nil {
			lns = append(lns, l.Listener)
		}
	}
	w := &Worker{
		Cycle:    c,
		Registry: reg,
		Latches:  signals.NewLatches(),
		Log:      c.Log.For("worker"),
	}
	w.Loop = NewAcceptLoop(lns, handler)
	return w
}

// Init runs spec §4.4's initialization: UID switch (if configured),
// clearing Remain on inherited listeners, and every module's
// init_process hook. The rand.New generator built here is not kept;
// math/rand's top-level functions are already randomly seeded per
// process by the Go runtime. A failure here is fatal (exit 1); Init
// returns the error for the caller (cmd/nginxcore) to act on, rather
// than calling os.Exit itself, so tests can observe it.
func (w *Worker) Init(coreIndex int) error {
	cfg := w.Cycle.CoreConfig(coreIndex)
	if cfg != nil && cfg.User != "" {
		if err := switchUser(cfg.User); err != nil {
			return fmt.Errorf("worker: switch to user %q: %w", cfg.User, err)
		}
	}

	rand.New(rand.NewSource(time.Now().UnixNano() + int64(w.Cycle.WorkerCount())))

	// Workers do not track cross-cycle carry-over (spec §4.4).
	for _, l := range w.Cycle.Listening {
		l.Remain = false
	}

	for _, d := range w.Registry.Modules() {
		if d.Hooks.InitProcess == nil {
			continue
		}
		if err := d.Hooks.InitProcess(w.Cycle); err != nil {
			return &cycle.FatalModuleError{Module: d.Name, Err: err}
		}
	}
	return nil
}

func switchUser(name string) error {
	u, err := user.Lookup(name)
	if err != nil {
		return err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("uid %q is not numeric: %w", u.Uid, err)
	}
	return syscall.Setuid(uid)
}

// Phase names the worker's current lifecycle phase, for logging and
// tests.
type Phase int

const (
	PhaseMain Phase = iota
	PhaseDrain
	PhaseExited
)

// Run drives the main phase until a signal latch transitions it away:
// terminate exits immediately (returns PhaseExited), quit enters
// drain, reopen reopens logs and continues (spec §4.4). Run blocks
// until the worker should exit and returns PhaseExited (after a
// terminate or a completed drain) plus an error, which is nil on a
// normal (signal-driven) exit.
func (w *Worker) Run() (Phase, error) {
	for {
		if err := w.Loop.ProcessEvents(w.Log); err != nil {
			w.Log.Error("worker: process_events error", "error", err)
			continue
		}

		switch {
		case w.Latches.Terminate.Load():
			return PhaseExited, nil
		case w.Latches.Quit.Load():
			return w.drain()
		case w.Latches.Reopen.Load():
			w.Latches.Reopen.Store(false)
			if err := w.Cycle.ReopenLogs(); err != nil {
				w.Log.Error("worker: reopen logs failed", "error", err)
			}
		}
	}
}

// drain implements spec §4.4's drain phase: stop accepting by closing
// every listening socket, then keep calling ProcessEvents until the
// timer tree holds only the sentinel (spec §8 invariant 5: "performs
// no accept ... and exits as soon as its timer tree is empty").
func (w *Worker) drain() (Phase, error) {
	w.Cycle.CloseListening()
	if al, ok := w.Loop.(*AcceptLoop); ok {
		al.Stop()
	}

	for !w.Loop.Timers().Empty() {
		if w.Latches.Terminate.Load() {
			return PhaseExited, nil
		}
		if err := w.Loop.ProcessEvents(w.Log); err != nil {
			w.Log.Error("worker: process_events error during drain", "error", err)
		}
	}
	return PhaseExited, nil
}

// CoreIndex is a small convenience for callers that only have a
// registry and need the core module's index (cmd/nginxcore uses it to
// obtain the index it passes to Init).
func CoreIndex(reg *module.Registry) int {
	d, err := reg.ByName(coremodule.Name)
	if err != nil {
		return -1
	}
	return d.Index()
}
