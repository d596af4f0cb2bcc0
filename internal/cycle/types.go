// Package cycle implements the Cycle data model and the Cycle Builder
// (spec.md §3, §4.2): the immutable-after-commit aggregate of bound
// resources a configuration needs, and the procedure that builds one
// generation's Cycle from the previous one plus a configuration file.
package cycle

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/logging"
)

// defaultListenCapacityHint and friends mirror spec §4.2 step 2's
// "small defaults, e.g. 10/20/10" pre-sizing when there is no old
// cycle to size against.
const (
	defaultListenCapacityHint = 10
	defaultFileCapacityHint   = 20
	defaultPathCapacityHint   = 10
)

// Listening is one listening endpoint (spec §3 "Listening endpoint").
// Exactly one of New/Remain is set on a committed cycle; Ignore never
// appears on a committed cycle (spec invariant).
type Listening struct {
	Addr     string // configured address, e.g. "0.0.0.0:8080"
	Network  string // "tcp" (AF_INET) — the only family this spec requires
	Key      []byte // canonical sockaddr bytes used for exact-match comparison
	Text     string // printable address
	FD       int    // raw descriptor once bound/inherited, -1 if unset
	Listener net.Listener

	New    bool
	Remain bool
	Ignore bool
}

// listenKey encodes an address the way the spec's "exact sockaddr byte
// equality over socklen" comparison demands: IP bytes (4 for IPv4)
// followed by the big-endian port. Two listeners configured for the
// same address always produce identical keys regardless of which
// cycle built them, which is the whole point — it is what lets
// matchListeners transfer a socket by identity instead of by string
// equality on the configured address text.
func listenKey(network, addr string) ([]byte, string, error) {
	a, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return nil, "", fmt.Errorf("cycle: resolve listen address %q: %w", addr, err)
	}
	ip := a.IP.To4()
	if ip == nil {
		ip = a.IP.To16()
	}
	key := make([]byte, len(ip)+2)
	copy(key, ip)
	key[len(ip)] = byte(a.Port >> 8)
	key[len(ip)+1] = byte(a.Port)
	return key, a.String(), nil
}

// OpenFile is one named, append-mode file (spec §3 "Open file").
type OpenFile struct {
	Path string
	File *os.File
}

// Cycle is the immutable-after-commit aggregate described in spec.md
// §3. Generation is a google/uuid-derived id stamped at Build time
// (SPEC_FULL.md §10) purely for log correlation across coexisting
// cycles; it carries no protocol meaning.
type Cycle struct {
	Generation string
	OldCycle   *Cycle // cleared post-commit; see Builder.diffOldCycle

	Arena *Arena

	Listening []*Listening
	OpenFiles []*OpenFile
	Pathes    []string

	ModuleConf []any
	Log        *logging.Sink

	// ConnectionN bounds the connection table: an inherited descriptor
	// value >= ConnectionN fails the build (spec §4.2 step 8, §8
	// boundary behavior).
	ConnectionN int

	// Bootstrap marks a cycle with no real predecessor: one that Build
	// made with a nil old cycle, or the synthetic old cycle that
	// FromInherited/FromSystemd make from inherited listeners. When such
	// a cycle is the old one, diffOldCycle destroys its arena immediately
	// (spec §4.2 step 12: "If the old cycle is the bootstrap init cycle
	// ... destroy its arena immediately").
	Bootstrap bool

	// workers counts live workers bound to this cycle; the old-cycle
	// retainer's cleanup timer destroys the arena once it reaches zero
	// (spec §3 "Old-cycle retainer").
	workers atomic.Int64
}

// New allocates an empty Cycle bound to a fresh arena, pre-sized from
// old (or from the package defaults if old is nil) — spec §4.2 steps
// 1–2.
func New(old *Cycle, maxModule int) *Cycle {
	listenCap, fileCap, pathCap := defaultListenCapacityHint, defaultFileCapacityHint, defaultPathCapacityHint
	if old != nil {
		listenCap, fileCap, pathCap = len(old.Listening), len(old.OpenFiles), len(old.Pathes)
		if listenCap == 0 {
			listenCap = defaultListenCapacityHint
		}
		if fileCap == 0 {
			fileCap = defaultFileCapacityHint
		}
		if pathCap == 0 {
			pathCap = defaultPathCapacityHint
		}
	}
	c := &Cycle{
		OldCycle:   old,
		Arena:      NewArena(),
		Listening:  make([]*Listening, 0, listenCap),
		OpenFiles:  make([]*OpenFile, 0, fileCap),
		Pathes:     make([]string, 0, pathCap),
		ModuleConf: make([]any, maxModule),
	}
	if old != nil {
		c.ConnectionN = old.ConnectionN
	}
	return c
}

// CoreConfig fetches the core module's configuration slot, asserting
// it is populated — a build that reached this point always has one
// (invariant a, spec §3).
func (c *Cycle) CoreConfig(coreIndex int) *coreconf.Config {
	cfg, _ := c.ModuleConf[coreIndex].(*coreconf.Config)
	return cfg
}

// AddWorker / RemoveWorker track how many live workers reference this
// cycle, for the old-cycle retainer's cleanup timer.
func (c *Cycle) AddWorker()    { c.workers.Add(1) }
func (c *Cycle) RemoveWorker() { c.workers.Add(-1) }
func (c *Cycle) WorkerCount() int64 { return c.workers.Load() }

// ReopenLogs reopens the cycle's log sink by path (spec §4.2, §4.4,
// §6 "reopen-logs"). Safe to call repeatedly (spec §8 idempotence).
func (c *Cycle) ReopenLogs() error {
	if c.Log == nil {
		return nil
	}
	return c.Log.Reopen()
}

// CloseListening closes every listening socket this cycle still owns,
// used by the worker's drain phase (spec §4.4) to stop accepting.
func (c *Cycle) CloseListening() {
	for _, l := range c.Listening {
		if l.Listener != nil {
			_ = l.Listener.Close()
		}
	}
}
