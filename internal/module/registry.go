// Package module implements the process-wide module registry: the
// ordered, statically-assigned set of module descriptors that a Cycle
// indexes its per-module configuration slots by.
package module

import "fmt"

// Type distinguishes the core module (always present, always index 0)
// from every other module kind.
type Type int

const (
	// Core is the single built-in module that owns user/daemon/
	// single_process/pid.
	Core Type = iota
	// Other covers every non-core module (http, stream, mail, ...),
	// none of which this core implements — they register through the
	// same table so the index space stays dense.
	Other
)

// Context is a bitmask of the directive contexts a Command may appear
// in (main, events, http, server, location, ...). The core only ever
// needs Main; it exists so non-core modules can plug richer command
// tables into the same registry without the core knowing their shape.
type Context uint32

const (
	CtxMain Context = 1 << iota
)

// Command describes one configuration directive: its name, the
// contexts it is legal in, how many arguments it takes, and the setter
// that applies it to a module's configuration. Offsets-into-structs
// (as in the C original) are deliberately not modeled; Set receives
// the already-typed config value instead of a struct+offset pair.
type Command struct {
	Name    string
	Allowed Context
	// Arity is the number of arguments the directive takes, or -1 for
	// "one or more".
	Arity int
	Set   func(cfg any, args []string) error
}

// Hooks are the two optional lifecycle callbacks a module may provide.
// InitModule runs once per committed cycle, after the Cycle Builder has
// parsed configuration and opened files/listeners (spec §4.2 step 11).
// InitProcess runs once per worker process, after fork (spec §4.4).
type Hooks struct {
	InitModule  func(cycle any) error
	InitProcess func(cycle any) error
}

// Descriptor is one module's static identity: a name, a type tag, its
// command table, and its hooks. Index is assigned by the registry at
// registration time and is stable for the life of the process.
type Descriptor struct {
	Name     string
	Type     Type
	Commands []Command
	Hooks    Hooks

	index int
}

// Index returns the module's position in [0, MaxModule), assigned by
// Register. Calling Index before registration returns -1.
func (d *Descriptor) Index() int {
	if d == nil {
		return -1
	}
	return d.index
}

// Registry is the ordered, append-only list of registered module
// descriptors. A Registry is built once at process start and never
// mutated afterward; every Cycle reads it to size and populate its
// module-config array.
type Registry struct {
	descriptors []*Descriptor
}

// NewRegistry builds a Registry from descriptors in registration order,
// assigning each one its dense, stable Index.
//
// Registration has no failure mode of its own (the data is static);
// invoking a hook that returns an error is a separate, fatal event
// handled by the caller (spec §4.1 "Failure semantics").
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{descriptors: make([]*Descriptor, len(descriptors))}
	for i, d := range descriptors {
		d.index = i
		r.descriptors[i] = d
	}
	return r
}

// Modules returns the ordered list of registered descriptors.
func (r *Registry) Modules() []*Descriptor {
	return r.descriptors
}

// MaxModule returns the number of registered modules — the size every
// Cycle must allocate its conf_ctx array to.
func (r *Registry) MaxModule() int {
	return len(r.descriptors)
}

// ByName looks up a descriptor by name; the Cycle Builder, the master
// and the worker use it to find the core module's index.
func (r *Registry) ByName(name string) (*Descriptor, error) {
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("module: no descriptor named %q", name)
}
