package cycle

import "fmt"

// BuildError wraps any failure during Build (spec §7 error class 1:
// "Build-time (Cycle Builder)"). The master recognizes this type and
// logs-and-continues, keeping the current cycle unchanged (spec §4.3
// "Reconfigure: ... On failure, keep the current cycle and resume
// supervision").
type BuildError struct {
	Stage string // which step of spec §4.2 failed, for logging
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cycle: build failed at %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func buildErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &BuildError{Stage: stage, Err: err}
}

// FatalModuleError wraps a non-OK return from init_module or
// init_process (spec §7 error class 2). It is unrecoverable: the
// process that observes it must exit(1) without attempting rollback,
// because partial module state cannot be safely unwound once other
// modules may already have committed (spec §4.1 "Failure semantics",
// §4.2 step 11).
type FatalModuleError struct {
	Module string
	Err    error
}

func (e *FatalModuleError) Error() string {
	return fmt.Sprintf("cycle: module %q init hook failed: %v", e.Module, e.Err)
}

func (e *FatalModuleError) Unwrap() error { return e.Err }
