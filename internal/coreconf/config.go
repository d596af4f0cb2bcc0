// Package coreconf implements the core module's configuration slot
// (spec.md §3 "Core configuration") and stands in for the "external
// collaborator, referenced only by contract" configuration parser
// (spec §1) with a minimal but real line-oriented grammar, so the
// Cycle Builder has something genuine to parse.
package coreconf

import "fmt"

// TriState models a directive that is unset, explicitly off, or
// explicitly on, with defaults materialized only at commit time
// (spec §3 "Defaults for tri-states are materialized at cycle-commit
// time if still unset").
type TriState int

const (
	Unset TriState = iota
	Off
	On
)

// Config is the core module's per-cycle configuration slot: the three
// core directives plus the pid path, as named in spec.md §3.
type Config struct {
	User          string
	Daemon        TriState
	SingleProcess TriState
	Pid           string

	// Listen and ErrorLog are the minimal supplementary directives
	// (SPEC_FULL.md §9 "Configuration") that exist only so the Cycle
	// Builder's socket/file-matching machinery (spec §4.2 steps 7–9)
	// has real directives driving it; they are not part of the core
	// three and carry no invariants of their own beyond "one address
	// or path per line".
	Listen   []string
	ErrorLog []string
}

// NewPreParse returns the Config a fresh cycle starts with before the
// configuration file is read: every tri-state Unset, matching
// spec §4.2 step 5 ("pre-parse init hook ... allocates the core config
// slot with tri-state fields set to unset").
func NewPreParse() *Config {
	return &Config{Daemon: Unset, SingleProcess: Unset}
}

// ApplyDefaults materializes the documented defaults for any tri-state
// still Unset after parsing: daemon defaults to on, single_process
// defaults to off (spec §3).
func (c *Config) ApplyDefaults() {
	if c.Daemon == Unset {
		c.Daemon = On
	}
	if c.SingleProcess == Unset {
		c.SingleProcess = Off
	}
	if c.Pid == "" {
		c.Pid = "/var/run/nginxcore.pid"
	}
}

func (t TriState) Bool() bool { return t == On }

func (t TriState) String() string {
	switch t {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unset"
	}
}

// ParseTriStateArg parses a directive argument ("on"/"off") into a
// TriState, for use by module.Command setters (internal/coremodule).
func ParseTriStateArg(arg string) (TriState, error) {
	switch arg {
	case "on":
		return On, nil
	case "off":
		return Off, nil
	default:
		return Unset, fmt.Errorf("coreconf: %q is not a valid tri-state (want on|off)", arg)
	}
}
