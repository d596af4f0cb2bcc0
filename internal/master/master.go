// Package master implements the master lifecycle (spec.md §4.3):
// spawning and supervising workers, and reacting to signals by
// triggering reconfiguration, log reopen, or binary replacement.
//
// Go has no fork(2): a worker cannot simply inherit the master's
// already-built Cycle by copying its address space. Instead, each
// worker is spawned by re-exec'ing the running binary (argv[0]
// preserved verbatim, spec §6) with its listening sockets passed
// through os/exec's ExtraFiles and described by the same NGINX
// environment-variable protocol spec §4.5 defines for binary
// replacement — the worker then runs the ordinary Cycle Builder
// against those inherited descriptors (internal/cycle.FromInherited)
// to reconstruct an equivalent Cycle in its own process memory. This
// is the Go-idiomatic rendering of "worker receives its initial
// cycle's listeners at fork" (spec §5 "Ordering guarantees"): the
// mechanism changes from address-space inheritance to fd inheritance
// plus a redundant local re-parse, but the observable contract —
// every worker generation sees a fully-built, never-mid-swap cycle —
// is identical.
package master

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/coremodule"
	"github.com/ankitkulkarni/nginxcore/internal/cycle"
	"github.com/ankitkulkarni/nginxcore/internal/fdenv"
	"github.com/ankitkulkarni/nginxcore/internal/module"
	"github.com/ankitkulkarni/nginxcore/internal/procfile"
	"github.com/ankitkulkarni/nginxcore/internal/signals"
)

// superviseTick is the master's interruptible sleep period (spec §4.3
// "Supervise phase: sleep 1 s").
const superviseTick = 1 * time.Second

// WorkerEnv and ConfigEnv mark a spawned child as "run as a worker"
// rather than re-entering master mode — an internal handshake, not a
// directive, per spec §6's "no other flags are defined by this core"
// (CLI flags remain the user-facing -c/-t/-s/-v set; this is how the
// master tells its own re-exec'd children which branch of main() to
// take).
const (
	WorkerEnv = "NGINXCORE_WORKER"
	ConfigEnv = "NGINXCORE_CONFIG"
)

// process tracks one spawned worker child. done is closed by reap
// once cmd.Wait returns, so other goroutines can observe exit without
// calling Wait a second time (exec.Cmd permits exactly one Wait call).
// cycle is the generation this worker was spawned for, which is what
// lets signalGeneration pick out "the old ones" at reconfigure time
// (spec §4.3 "Reconfigure").
type process struct {
	cmd   *exec.Cmd
	dead  bool
	done  chan struct{}
	cycle *cycle.Cycle
}

// Master owns the current cycle and the worker processes bound to it.
type Master struct {
	Registry   *module.Registry
	Builder    *cycle.Builder
	ConfigPath string
	Latches    *signals.Latches
	Log        *slog.Logger
	WorkerProc string // os.Args[0], preserved verbatim for exec (spec §6)
	Args       []string

	current  *cycle.Cycle
	workers  []*process
	stopWake func()
}

// New constructs a Master. current must already be a committed cycle
// (the caller builds the bootstrap cycle before deciding master vs.
// single_process mode, per spec §2 "Data flow").
func New(reg *module.Registry, builder *cycle.Builder, configPath string, current *cycle.Cycle) *Master {
	return &Master{
		Registry:   reg,
		Builder:    builder,
		ConfigPath: configPath,
		Latches:    signals.NewLatches(),
		Log:        current.Log.For("master"),
		WorkerProc: os.Args[0],
		Args:       os.Args[1:],
		current:    current,
	}
}

// Current returns the cycle the master currently considers live.
func (m *Master) Current() *cycle.Cycle { return m.current }

// coreIndex resolves the core module's registry index once.
func (m *Master) coreIndex() int {
	d, err := m.Registry.ByName(coremodule.Name)
	if err != nil {
		return -1
	}
	return d.Index()
}

// Run is the master's top-level loop: write the PID file, spawn the
// initial worker generation, install signal handling, and supervise
// until a shutdown is requested. It returns the exit code (spec §6).
func (m *Master) Run() int {
	cfg := m.current.CoreConfig(m.coreIndex())
	if err := procfile.Write(cfg.Pid); err != nil {
		m.Log.Error("master: failed to write pid file, exiting", "error", err)
		return 1
	}
	defer func() {
		if err := procfile.Remove(cfg.Pid); err != nil {
			m.Log.Warn("master: failed to remove pid file", "error", err)
		}
	}()

	m.stopWake = m.Latches.WatchMaster()
	defer m.stopWake()

	workerCount := 1
	if n := len(m.current.Listening); n > 0 {
		workerCount = n
	}

	if err := m.spawn(workerCount); err != nil {
		m.Log.Error("master: initial spawn failed, exiting", "error", err)
		return 1
	}
	m.notifyReady()

	return m.supervise()
}

// supervise implements spec §4.3's Supervise phase: an interruptible
// 1s sleep, woken early by any latch-setting signal (via Latches.Wake),
// that reacts to whichever latches are set and loops until a shutdown
// or terminate is observed.
func (m *Master) supervise() int {
	ticker := time.NewTicker(superviseTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.Latches.Wake:
		case <-ticker.C:
		}

		if m.Latches.Terminate.Load() {
			m.Log.Info("master: terminate received, signaling workers and exiting")
			m.signalWorkers(signals.Terminate)
			return 0
		}
		if m.Latches.Quit.Load() {
			m.Log.Info("master: shutdown requested, draining workers")
			return m.shutdown()
		}
		if m.Latches.ChangeBinary.Load() {
			m.Latches.ChangeBinary.Store(false)
			if err := m.changeBinary(); err != nil {
				m.Log.Error("master: change binary failed", "error", err)
			}
		}
		if m.Latches.Reconfigure.Load() {
			m.Latches.Reconfigure.Store(false)
			if err := m.reconfigure(); err != nil {
				var fatal *cycle.FatalModuleError
				if errors.As(err, &fatal) {
					m.Log.Error("master: fatal module init failure during reconfigure, exiting",
						"module", fatal.Module, "error", err)
					m.signalWorkers(signals.Terminate)
					return 1
				}
				m.Log.Error("master: reconfigure failed, continuing with prior cycle", "error", err)
			}
		}
		if m.Latches.Reopen.Load() {
			m.Latches.Reopen.Store(false)
			if err := m.current.ReopenLogs(); err != nil {
				m.Log.Error("master: reopen logs failed", "error", err)
			}
			m.signalWorkers(signals.ReopenLogs)
		}
		if m.Latches.Respawn.Load() {
			m.Latches.Respawn.Store(false)
			m.respawnDead()
		}
	}
}

// reconfigure implements spec §4.2/§4.3's reload path: build a new
// cycle from the same config path against the current cycle, spawn a
// fresh worker generation bound to it, then signal the superseded
// generation to gracefully quit (spec §4.3 "Reconfigure", §8 S2) now
// that the new one is up. A build failure leaves the master running
// the prior cycle untouched (spec §7 class 1: "master logs and
// continues").
func (m *Master) reconfigure() error {
	next, err := m.Builder.Build(m.ConfigPath, m.current)
	if err != nil {
		return err
	}
	retiring := m.current
	m.current = next
	if err := m.spawn(len(next.Listening)); err != nil {
		return err
	}
	m.signalGeneration(retiring, signals.Shutdown)
	return nil
}

// changeBinary implements spec §4.3's binary-upgrade path: re-exec a
// (potentially replaced) binary image at the same argv[0], handing it
// the current cycle's listening sockets through the same NGINX
// env-var protocol workers use, so the new image's master can adopt
// them without an accept gap. This master keeps running its existing
// workers until an operator sends it Shutdown once the new master has
// taken over (spec §6 "change-binary").
func (m *Master) changeBinary() error {
	cmd := exec.Command(m.WorkerProc, m.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	fds := make([]int, 0, len(m.current.Listening))
	for _, l := range m.current.Listening {
		tl, ok := l.Listener.(*net.TCPListener)
		if !ok {
			continue
		}
		f, err := tl.File()
		if err != nil {
			return fmt.Errorf("dup listener %s for change-binary: %w", l.Text, err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
		fds = append(fds, 3+len(cmd.ExtraFiles)-1)
	}
	cmd.Env = append(cmd.Env, fdenv.EnvVar+"="+fdenv.Encode(fds))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec replacement binary: %w", err)
	}
	m.Log.Info("master: replacement binary started", "pid", cmd.Process.Pid)
	return nil
}

// signalWorkers delivers a logical signal to every live worker child,
// regardless of which cycle generation it belongs to.
func (m *Master) signalWorkers(l signals.Logical) {
	m.signalGeneration(nil, l)
}

// signalGeneration delivers a logical signal to every live worker
// child bound to gen, or to all of them if gen is nil. Reconfigure
// uses this with the superseded cycle to tell only the old generation
// to gracefully quit, leaving the newly spawned one untouched (spec
// §4.3 "Reconfigure").
func (m *Master) signalGeneration(gen *cycle.Cycle, l signals.Logical) {
	sig, ok := signals.ToPOSIX(l)
	if !ok {
		return
	}
	for _, p := range m.workers {
		if p.dead || p.cmd.Process == nil {
			continue
		}
		if gen != nil && p.cycle != gen {
			continue
		}
		if err := p.cmd.Process.Signal(sig); err != nil {
			m.Log.Warn("master: signal worker failed", "pid", p.cmd.Process.Pid, "error", err)
		}
	}
}

// shutdown implements graceful shutdown (spec §9 "TODO: wait
// workers", resolved in SPEC_FULL.md §12): the master signals every
// live worker to drain and returns immediately without blocking on
// their exit. This is a deliberate non-feature, not an oversight —
// each worker's own drain phase (spec §4.4) is what bounds its exit,
// and the master has no further role once the signal is delivered.
func (m *Master) shutdown() int {
	m.signalWorkers(signals.Shutdown)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		m.Log.Debug("master: SdNotify(STOPPING) failed (likely not under systemd)", "error", err)
	}
	return 0
}

// spawn implements the Spawn phase: one worker per configured slot,
// all bound to the master's current cycle.
func (m *Master) spawn(n int) error {
	for i := 0; i < n; i++ {
		p, err := m.spawnOne(m.current)
		if err != nil {
			return fmt.Errorf("master: spawn worker %d/%d: %w", i+1, n, err)
		}
		m.workers = append(m.workers, p)
	}
	return nil
}

func (m *Master) spawnOne(c *cycle.Cycle) (*process, error) {
	cmd := exec.Command(m.WorkerProc, m.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), WorkerEnv+"=1", ConfigEnv+"="+m.ConfigPath)

	fds := make([]int, 0, len(c.Listening))
	for _, l := range c.Listening {
		tl, ok := l.Listener.(*net.TCPListener)
		if !ok {
			continue
		}
		f, err := tl.File()
		if err != nil {
			return nil, fmt.Errorf("dup listener %s: %w", l.Text, err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
		fds = append(fds, 3+len(cmd.ExtraFiles)-1)
	}
	cmd.Env = append(cmd.Env, fdenv.EnvVar+"="+fdenv.Encode(fds))

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c.AddWorker()

	p := &process{cmd: cmd, done: make(chan struct{}), cycle: c}
	go m.reap(p, c)
	return p, nil
}

// reap waits for a worker to exit, marks it dead, decrements the
// cycle's worker count (so the old-cycle retainer can eventually free
// it), and wakes the supervise loop — the Go-idiomatic stand-in for
// the child-exit signal setting Respawn (spec §6 "child-exit").
func (m *Master) reap(p *process, c *cycle.Cycle) {
	_ = p.cmd.Wait()
	p.dead = true
	close(p.done)
	c.RemoveWorker()
	m.Latches.Respawn.Store(true)
	select {
	case m.Latches.Wake <- struct{}{}:
	default:
	}
}

// respawnDead replaces every dead worker slot with a freshly spawned
// worker bound to the master's current cycle (spec §4.3 "respawn_processes
// ... reaps dead children and replaces them"). A dead worker from a
// generation reconfigure already superseded is dropped instead of
// replaced — it exited because it was told to gracefully quit, not
// because it crashed, and the new generation already covers its slot.
func (m *Master) respawnDead() {
	live := m.workers[:0]
	for _, p := range m.workers {
		if !p.dead {
			live = append(live, p)
			continue
		}
		if p.cycle != m.current {
			continue
		}
		np, err := m.spawnOne(m.current)
		if err != nil {
			m.Log.Error("master: respawn failed", "error", err)
			continue
		}
		live = append(live, np)
	}
	m.workers = live
}

// notifyReady tells systemd (if supervised) the master has finished
// its spawn phase (SPEC_FULL.md §10, grounded on
// graceful_restarts/systemd-socket-activation).
func (m *Master) notifyReady() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		m.Log.Debug("master: SdNotify(READY) failed (likely not under systemd)", "error", err)
	}
}

// CoreConfigForTest exposes the current cycle's core config for tests.
func (m *Master) CoreConfigForTest() *coreconf.Config {
	return m.current.CoreConfig(m.coreIndex())
}
