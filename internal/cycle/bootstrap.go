package cycle

import (
	"net"

	"github.com/ankitkulkarni/nginxcore/internal/fdenv"
)

// FromInherited builds a synthetic "old" cycle out of descriptors
// decoded from the NGINX environment variable (spec §4.5), so the
// very first call to Builder.Build can run its ordinary listener-
// matching logic (spec §4.2 step 8) against inherited sockets exactly
// as it would against a real predecessor cycle — change-binary (spec
// §4.3 "Binary upgrade") and the master's re-exec'd workers both funnel
// through here; systemd activation goes through FromSystemd instead.
//
// The returned cycle is never committed and is discarded by the
// caller's first real Build call's diff step; it exists purely to
// carry Listening entries with their descriptors and match keys
// populated.
func FromInherited(entries []fdenv.Entry) *Cycle {
	c := &Cycle{Arena: NewArena(), Bootstrap: true}
	for _, e := range entries {
		l := &Listening{FD: e.FD, Listener: e.Listener, Text: e.Text, Ignore: e.Ignore}
		if !e.Ignore && e.Listener != nil {
			if key, _, err := listenKey("tcp", e.Listener.Addr().String()); err == nil {
				l.Key = key
			}
		}
		c.Listening = append(c.Listening, l)
	}
	return c
}

// FromSystemd builds a synthetic "old" cycle from listeners handed
// over by systemd socket activation (SPEC_FULL.md §10, grounded on
// github.com/coreos/go-systemd/v22/activation) — a second, OS-native
// inheritance channel independent of the NGINX-env-var protocol. Like
// FromInherited, the result only ever feeds Builder.Build's ordinary
// matching logic; it carries no NGINX-env-var semantics of its own.
func FromSystemd(listeners []net.Listener) *Cycle {
	c := &Cycle{Arena: NewArena(), Bootstrap: true}
	for _, ln := range listeners {
		l := &Listening{Listener: ln, Text: ln.Addr().String(), FD: -1}
		if tl, ok := ln.(*net.TCPListener); ok {
			if rc, err := tl.SyscallConn(); err == nil {
				_ = rc.Control(func(fd uintptr) { l.FD = int(fd) })
			}
		}
		if key, _, err := listenKey("tcp", ln.Addr().String()); err == nil {
			l.Key = key
		}
		c.Listening = append(c.Listening, l)
	}
	return c
}

// InheritedFDs returns the recorded descriptor numbers of the cycle's
// listeners, in order, skipping any whose FD is unset (-1). The
// master's change-binary path does not call it: it encodes the
// ExtraFiles positions of fresh dups instead.
func (c *Cycle) InheritedFDs() []int {
	fds := make([]int, 0, len(c.Listening))
	for _, l := range c.Listening {
		if l.FD >= 0 {
			fds = append(fds, l.FD)
		}
	}
	return fds
}
