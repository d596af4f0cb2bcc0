// Package cli wires cmd/nginxcore's flag surface with
// github.com/spf13/cobra (SPEC_FULL.md §9 "CLI"), grounded on
// giantswarm-muster/cmd/root.go's rootCmd/Execute pattern. It exposes
// exactly the flags spec.md §6 allows this core to define: -c (config
// path), -t (test-config-and-exit), -s (send-signal-to-running-
// master), -v (version) — cobra is the parsing library, not a source
// of additional directives.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Exit codes, matching spec §6's "exit 0/1" contract.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Options is the parsed flag set main() acts on.
type Options struct {
	ConfigPath string
	TestConfig bool
	Signal     string
	Version    bool
}

// Build returns the root *cobra.Command. run is called once flags are
// parsed and populated into opts; its return value becomes the
// process exit code. Version is handled as an ordinary -v/--version
// bool flag rather than cobra's built-in --version machinery, so it
// stays a single flag under our own spelling (spec §6 "no other flags
// are defined by this core").
func Build(version string, opts *Options, run func(*Options) int) *cobra.Command {
	root := &cobra.Command{
		Use:          "nginxcore",
		Short:        "A supervisory core: master/worker lifecycle, cycle builder, signal protocol",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Printf("nginxcore version %s\n", version)
				return nil
			}
			code := run(opts)
			if code != ExitSuccess {
				return fmt.Errorf("exit %d", code)
			}
			return nil
		},
	}

	root.Flags().StringVarP(&opts.ConfigPath, "config", "c", "/etc/nginxcore/nginxcore.conf", "path to configuration file")
	root.Flags().BoolVarP(&opts.TestConfig, "test", "t", false, "test configuration and exit")
	root.Flags().StringVarP(&opts.Signal, "signal", "s", "", "send a signal to a running master (stop|quit|reload|reopen|change-binary)")
	root.Flags().BoolVarP(&opts.Version, "version", "v", false, "print version and exit")

	return root
}
