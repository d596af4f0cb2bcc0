package cli

import (
	"fmt"
	"os"

	"github.com/ankitkulkarni/nginxcore/internal/procfile"
	"github.com/ankitkulkarni/nginxcore/internal/signals"
)

// nameToLogical maps the -s flag's accepted spellings onto the
// logical signals internal/signals defines, mirroring nginx's
// ngx_signal_process (SPEC_FULL.md §11).
var nameToLogical = map[string]signals.Logical{
	"stop":          signals.Shutdown,
	"quit":          signals.Shutdown,
	"reload":        signals.Reconfigure,
	"reopen":        signals.ReopenLogs,
	"change-binary": signals.ChangeBinary,
}

// SendControlSignal implements the -s control-client path: read pidPath,
// translate name to a POSIX signal, and deliver it to that process.
func SendControlSignal(pidPath, name string) error {
	logical, ok := nameToLogical[name]
	if !ok {
		return fmt.Errorf("cli: unknown signal name %q (want stop|quit|reload|reopen|change-binary)", name)
	}
	sig, ok := signals.ToPOSIX(logical)
	if !ok {
		return fmt.Errorf("cli: signal %q has no external POSIX form", name)
	}
	pid, err := procfile.Read(pidPath)
	if err != nil {
		return fmt.Errorf("cli: no running master found: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("cli: pid %d not found: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("cli: signal pid %d: %w", pid, err)
	}
	return nil
}
