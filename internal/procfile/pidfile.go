// Package procfile manages the PID file (spec.md §5 "PID file",
// §6 "Files"): plain text, decimal process id, no trailing newline
// required, exactly one writer (master or single_process worker).
package procfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Write creates path containing the current process id. Creation
// failure is fatal to the caller (spec §5 "If creation fails the
// process exits 1").
func Write(path string) error {
	if path == "" {
		return nil
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("procfile: write %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. Failure is logged by the caller but never
// changes exit status (spec §5, §7 class 3).
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("procfile: remove %s: %w", path, err)
	}
	return nil
}

// Read parses the pid out of path, for the -s control-client path
// (SPEC_FULL.md §11).
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("procfile: read %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("procfile: %s does not contain a valid pid: %w", path, err)
	}
	return pid, nil
}
