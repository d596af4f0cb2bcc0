package cycle

import (
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/logging"
	"github.com/ankitkulkarni/nginxcore/internal/module"
)

// Mode tells the builder whether it is running inside the master
// process or a bootstrapping single_process worker, which changes how
// step 12's old-cycle diff disposes of a fully-superseded old cycle
// (spec §4.2 step 12: "In master mode, also destroy it immediately").
type Mode int

const (
	ModeMaster Mode = iota
	ModeSingleProcess
)

// Builder runs init_cycle (spec §4.2). It owns the dependencies the
// algorithm needs but the Cycle itself must stay ignorant of: the
// module registry (for init_module hooks and the core module's
// index), the configuration Parser, the retainer old cycles get
// enqueued onto, and the connection-table bound inherited descriptors
// are checked against.
type Builder struct {
	Registry        *module.Registry
	Parser          coreconf.Parser
	Retainer        *Retainer
	Mode            Mode
	ConnectionN     int
	DefaultErrorLog string
	CoreModuleName  string
}

// NewBuilder returns a Builder with the spec's documented connection
// table default and the conventional core module name.
func NewBuilder(reg *module.Registry, parser coreconf.Parser, retainer *Retainer, mode Mode) *Builder {
	return &Builder{
		Registry:        reg,
		Parser:          parser,
		Retainer:        retainer,
		Mode:            mode,
		ConnectionN:     512,
		DefaultErrorLog: "",
		CoreModuleName:  "core",
	}
}

// Build runs spec §4.2's algorithm end to end: allocate, parse, open
// files, match and open listeners, and — only if every prior step
// succeeded — commit and diff against old. On any failure it rolls
// back everything this call opened and returns old's caller unchanged.
func (b *Builder) Build(configPath string, old *Cycle) (*Cycle, error) {
	core, err := b.Registry.ByName(b.CoreModuleName)
	if err != nil {
		return nil, buildErr("module-registry", err)
	}
	coreIndex := core.Index()

	// Steps 1-2: fresh arena + pre-sized cycle.
	c := New(old, b.Registry.MaxModule())
	c.Generation = uuid.NewString()
	c.ConnectionN = b.ConnectionN
	c.Bootstrap = old == nil

	// Step 3: per-cycle log, bound to the default path until the
	// configuration (if any) retargets it below.
	logPath := b.DefaultErrorLog
	if old != nil && old.Log != nil && old.Log.Path() != "" {
		logPath = old.Log.Path()
	}
	sink, err := logging.New(logPath, logging.LevelInfo, c.Generation)
	if err != nil {
		c.Arena.Destroy()
		return nil, buildErr("create-log", err)
	}
	c.Log = sink
	c.Arena.Own(func() { _ = sink.Close() })

	// Step 4-5: module-config array + core module's pre-parse slot.
	c.ModuleConf[coreIndex] = coreconf.NewPreParse()

	// Step 6: parse. Parse failures abort the build outright.
	coreCfg := c.CoreConfig(coreIndex)
	if err := b.Parser.Parse(configPath, coreCfg); err != nil {
		c.Arena.Destroy()
		return nil, buildErr("parse", err)
	}

	// Build the new cycle's candidate listener set from the parsed
	// configuration before touching any resource, so matching (step 8)
	// has something to match against.
	candidates, err := buildCandidateListeners(coreCfg.Listen)
	if err != nil {
		c.Arena.Destroy()
		return nil, buildErr("listen-directive", err)
	}

	// Step 7: open files. Stop at the first failure; anything opened
	// so far is rolled back below.
	if err := b.openFiles(c, coreCfg.ErrorLog); err != nil {
		b.rollback(c)
		return nil, buildErr("open-files", err)
	}

	// Step 8: listener matching against the old cycle.
	c.Listening = b.matchListeners(candidates, old)
	if err := checkDescriptorBound(c.Listening, c.ConnectionN); err != nil {
		b.rollback(c)
		return nil, buildErr("descriptor-bound", err)
	}

	// Step 9: open every new listener without a descriptor.
	if err := b.openListeners(c); err != nil {
		b.rollback(c)
		return nil, buildErr("open-listeners", err)
	}

	// Step 11 (commit): materialize tri-state defaults, re-point the
	// arena's owned log, then run init_module hooks.
	coreCfg.ApplyDefaults()
	if err := b.retargetLog(c, coreCfg); err != nil {
		b.rollback(c)
		return nil, buildErr("retarget-log", err)
	}

	for _, d := range b.Registry.Modules() {
		if d.Hooks.InitModule == nil {
			continue
		}
		if err := d.Hooks.InitModule(c); err != nil {
			// Module hook failure is unrecoverable (spec §7 class 2):
			// no rollback, the caller must exit(1).
			return nil, &FatalModuleError{Module: d.Name, Err: err}
		}
	}

	// Step 12: diff against the old cycle and dispose of it.
	if old != nil {
		b.diffOldCycle(c, old)
	}

	return c, nil
}

// retargetLog switches the cycle's log sink onto the first configured
// error_log path, if any, leaving it on the bootstrap/default path
// otherwise.
func (b *Builder) retargetLog(c *Cycle, cfg *coreconf.Config) error {
	if len(cfg.ErrorLog) == 0 {
		return nil
	}
	target := cfg.ErrorLog[0]
	if c.Log.Path() == target {
		return nil
	}
	newSink, err := logging.New(target, logging.LevelInfo, c.Generation)
	if err != nil {
		return err
	}
	old := c.Log
	c.Log = newSink
	c.Arena.Own(func() { _ = newSink.Close() })
	_ = old.Close()
	return nil
}

// openFiles implements step 7: every declared open file is opened
// read-write, create-or-open, append. On the first failure, opening
// stops — files opened by earlier iterations of this loop stay open
// until rollback closes them.
func (b *Builder) openFiles(c *Cycle, paths []string) error {
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		of := &OpenFile{Path: p, File: f}
		c.OpenFiles = append(c.OpenFiles, of)
	}
	return nil
}

// buildCandidateListeners turns the parsed "listen" directive values
// into unopened Listening entries with their match keys precomputed.
func buildCandidateListeners(addrs []string) ([]*Listening, error) {
	out := make([]*Listening, 0, len(addrs))
	for _, addr := range addrs {
		key, text, err := listenKey("tcp", addr)
		if err != nil {
			return nil, err
		}
		out = append(out, &Listening{
			Addr:    addr,
			Network: "tcp",
			Key:     key,
			Text:    text,
			FD:      -1,
		})
	}
	return out, nil
}

// matchListeners implements spec §4.2 step 8: for each candidate new
// listener, search the old cycle's listeners (skipping Ignore) for an
// exact sockaddr-byte match; on a match, transfer the descriptor and
// mark Remain on both sides; otherwise mark the candidate New. Ties
// favor the first old listener not already claimed (spec
// "Determinism").
func (b *Builder) matchListeners(candidates []*Listening, old *Cycle) []*Listening {
	if old == nil || len(old.Listening) == 0 {
		for _, l := range candidates {
			l.New = true
		}
		return candidates
	}

	for _, ol := range old.Listening {
		ol.Remain = false
	}

	claimed := make(map[*Listening]bool, len(old.Listening))
	for _, nl := range candidates {
		matched := false
		for _, ol := range old.Listening {
			if ol.Ignore || claimed[ol] {
				continue
			}
			if bytesEqual(ol.Key, nl.Key) {
				nl.FD = ol.FD
				nl.Listener = ol.Listener
				nl.Remain = true
				ol.Remain = true
				claimed[ol] = true
				matched = true
				break
			}
		}
		if !matched {
			nl.New = true
		}
	}
	return candidates
}

// checkDescriptorBound implements the boundary rule from spec §4.2
// step 8 and §8: "If an inherited descriptor value exceeds the
// configured connection-table size, fail the build" — fd == n-1 is
// accepted, fd == n is rejected. Only descriptors carried over by
// matching (Remain) are checked; a freshly bound New listener's fd is
// assigned by the kernel and is never subject to this bound.
func checkDescriptorBound(listening []*Listening, connectionN int) error {
	if connectionN <= 0 {
		return nil
	}
	for _, l := range listening {
		if !l.Remain {
			continue
		}
		if l.FD >= connectionN {
			return fmt.Errorf("inherited descriptor %d exceeds connection table size %d", l.FD, connectionN)
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// openListeners implements spec §4.2 step 9: bind+listen every new
// listener that has no descriptor yet (i.e. was not inherited by
// matching or by the fdenv decode path). Any failure fails the build.
func (b *Builder) openListeners(c *Cycle) error {
	for _, l := range c.Listening {
		if !l.New || l.FD >= 0 {
			continue
		}
		ln, err := net.Listen(l.Network, l.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", l.Addr, err)
		}
		l.Listener = ln
		if tl, ok := ln.(*net.TCPListener); ok {
			if rc, rerr := tl.SyscallConn(); rerr == nil {
				_ = rc.Control(func(fd uintptr) { l.FD = int(fd) })
			}
		}
	}
	return nil
}

// rollback implements spec §4.2 step 10: close every file this build
// opened, close every new listener with a descriptor, destroy the
// arena. The old cycle's state is never touched by rollback.
func (b *Builder) rollback(c *Cycle) {
	for _, of := range c.OpenFiles {
		if of.File != nil {
			_ = of.File.Close()
		}
	}
	for _, l := range c.Listening {
		if l.New && l.Listener != nil {
			_ = l.Listener.Close()
		}
	}
	c.Arena.Destroy()
}

// diffOldCycle implements spec §4.2 step 12: close every old listener
// whose Remain is false, close every old open file, then either
// destroy the old arena immediately (bootstrap cycle or master mode)
// or enqueue it onto the retainer for the cleanup timer to reap once
// its worker count reaches zero.
func (b *Builder) diffOldCycle(c *Cycle, old *Cycle) {
	for _, ol := range old.Listening {
		if !ol.Remain && ol.Listener != nil {
			_ = ol.Listener.Close()
		}
	}
	for _, of := range old.OpenFiles {
		if of.File != nil {
			_ = of.File.Close()
		}
	}

	c.OldCycle = nil // cyclic back-reference cleared post-commit (spec §9)

	if old.Bootstrap || b.Mode == ModeMaster {
		old.Arena.Destroy()
		return
	}
	if b.Retainer != nil {
		b.Retainer.Enqueue(old)
	} else {
		old.Arena.Destroy()
	}
}
