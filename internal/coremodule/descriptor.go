// Package coremodule wires the core configuration slot (internal/
// coreconf) into the module registry's descriptor/command-table model
// (spec.md §3 "Module descriptor", §9 "Replace the configuration
// 'command table' dispatch ... with a polymorphic directive handler").
//
// Offsets-into-structs, as the C original used, are not modeled; each
// Command.Set is a typed setter closing over *coreconf.Config.
package coremodule

import (
	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/module"
)

// Name is the registry name this module registers under; both the
// Cycle Builder and the CLI's -t path look it up by this name.
const Name = "core"

func setOne(fn func(cfg *coreconf.Config, arg string) error) func(any, []string) error {
	return func(cfg any, args []string) error {
		c := cfg.(*coreconf.Config)
		if len(args) != 1 {
			return errArity(1, len(args))
		}
		return fn(c, args[0])
	}
}

func errArity(want, got int) error {
	return &arityError{want: want, got: got}
}

type arityError struct{ want, got int }

func (e *arityError) Error() string {
	return "wrong number of arguments"
}

// CommandSet flattens every registered descriptor's Commands into the
// name-keyed dispatch table internal/coreconf's LineParser parses
// against — the registry-wide "polymorphic directive handler" spec §9
// calls for, built from whichever modules are actually registered
// rather than a single hardcoded switch.
func CommandSet(descriptors []*module.Descriptor) map[string]func(any, []string) error {
	set := make(map[string]func(any, []string) error)
	for _, d := range descriptors {
		for _, cmd := range d.Commands {
			set[cmd.Name] = cmd.Set
		}
	}
	return set
}

// Descriptor returns the core module's static Descriptor. It carries
// no init hooks of its own: the UID switch, the daemon/single_process
// branch, and the pid file are driven directly by internal/master and
// internal/worker reading the Config the Cycle Builder already
// populated, rather than through an InitModule/InitProcess callback —
// there being exactly one core module, a hook indirection here would
// buy nothing spec §4.1/§4.4 doesn't already get from direct field
// reads.
func Descriptor() *module.Descriptor {
	return &module.Descriptor{
		Name: Name,
		Type: module.Core,
		Commands: []module.Command{
			{
				Name:    "user",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					c.User = arg
					return nil
				}),
			},
			{
				Name:    "daemon",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					ts, err := coreconf.ParseTriStateArg(arg)
					if err != nil {
						return err
					}
					c.Daemon = ts
					return nil
				}),
			},
			{
				Name:    "single_process",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					ts, err := coreconf.ParseTriStateArg(arg)
					if err != nil {
						return err
					}
					c.SingleProcess = ts
					return nil
				}),
			},
			{
				Name:    "pid",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					c.Pid = arg
					return nil
				}),
			},
			{
				Name:    "listen",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					c.Listen = append(c.Listen, arg)
					return nil
				}),
			},
			{
				Name:    "error_log",
				Allowed: module.CtxMain,
				Arity:   1,
				Set: setOne(func(c *coreconf.Config, arg string) error {
					c.ErrorLog = append(c.ErrorLog, arg)
					return nil
				}),
			},
		},
	}
}
