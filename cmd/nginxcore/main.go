// Command nginxcore is the entrypoint: it parses flags (internal/cli),
// builds the bootstrap cycle (internal/cycle), and then branches into
// master mode, single_process mode, or re-exec'd worker mode depending
// on how it was invoked and what the configuration says — the
// top-level dispatch spec.md §2 "Data flow" describes.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/activation"

	"github.com/ankitkulkarni/nginxcore/internal/cli"
	"github.com/ankitkulkarni/nginxcore/internal/coreconf"
	"github.com/ankitkulkarni/nginxcore/internal/coremodule"
	"github.com/ankitkulkarni/nginxcore/internal/cycle"
	"github.com/ankitkulkarni/nginxcore/internal/fdenv"
	"github.com/ankitkulkarni/nginxcore/internal/master"
	"github.com/ankitkulkarni/nginxcore/internal/module"
	"github.com/ankitkulkarni/nginxcore/internal/procfile"
	"github.com/ankitkulkarni/nginxcore/internal/worker"
)

// version is stamped by -ldflags at release build time; the teacher's
// demos never versioned their binaries, so this follows muster's
// SetVersion/GetVersion convention instead (SPEC_FULL.md §9 "CLI").
var version = "dev"

func main() {
	opts := &cli.Options{}
	root := cli.Build(version, opts, run)
	if err := root.Execute(); err != nil {
		os.Exit(cli.ExitFailure)
	}
}

// run is cli.Build's callback: opts is fully populated from flags by
// the time this is called.
func run(opts *cli.Options) int {
	reg := module.NewRegistry(coremodule.Descriptor())
	commands := coremodule.CommandSet(reg.Modules())
	parser := coreconf.LineParser{Commands: commands}

	if opts.Signal != "" {
		if err := cli.SendControlSignal(pidPathFromConfig(parser, opts.ConfigPath), opts.Signal); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return cli.ExitFailure
		}
		return cli.ExitSuccess
	}

	retainer := cycle.NewRetainer(slog.Default())
	mode := cycle.ModeMaster
	if os.Getenv(master.WorkerEnv) == "1" {
		mode = cycle.ModeSingleProcess // a re-exec'd worker builds its own cycle, never a master's
	}
	builder := cycle.NewBuilder(reg, parser, retainer, mode)

	old := bootstrapOldCycle()
	built, err := builder.Build(opts.ConfigPath, old)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nginxcore: configuration build failed: %v\n", err)
		return cli.ExitFailure
	}

	if opts.TestConfig {
		fmt.Println("nginxcore: configuration file test is successful")
		built.Arena.Destroy()
		return cli.ExitSuccess
	}

	coreIndex := worker.CoreIndex(reg)
	cfg := built.CoreConfig(coreIndex)

	if os.Getenv(master.WorkerEnv) == "1" {
		return runWorker(built, reg, coreIndex)
	}

	if cfg.SingleProcess.Bool() {
		if err := procfile.Write(cfg.Pid); err != nil {
			fmt.Fprintf(os.Stderr, "nginxcore: %v\n", err)
			return cli.ExitFailure
		}
		defer func() {
			if err := procfile.Remove(cfg.Pid); err != nil {
				fmt.Fprintf(os.Stderr, "nginxcore: %v\n", err)
			}
		}()
		return runWorker(built, reg, coreIndex)
	}

	m := master.New(reg, builder, opts.ConfigPath, built)
	return m.Run()
}

// bootstrapOldCycle builds the synthetic "old" cycle the very first
// Build call matches against: inherited fds from the NGINX env var (a
// re-exec'd worker or a change-binary successor) take priority over
// systemd-activation listeners, which take priority over a true
// from-nothing bootstrap (spec §4.5, SPEC_FULL.md §10).
func bootstrapOldCycle() *cycle.Cycle {
	if v := os.Getenv(fdenv.EnvVar); v != "" {
		entries := fdenv.Decode(v, func(msg string) { fmt.Fprintln(os.Stderr, "nginxcore: "+msg) })
		return cycle.FromInherited(entries)
	}
	if lns, err := activation.Listeners(); err == nil && len(lns) > 0 {
		return cycle.FromSystemd(lns)
	}
	return nil
}

// runWorker drives a worker process (re-exec'd by the master, or this
// same process in single_process mode) through init and its main/drain
// phases (spec §4.4).
func runWorker(c *cycle.Cycle, reg *module.Registry, coreIndex int) int {
	w := worker.New(c, reg, echoHandler)
	if err := w.Init(coreIndex); err != nil {
		w.Log.Error("worker: init failed, exiting", "error", err)
		return cli.ExitFailure
	}

	stop := w.Latches.WatchWorker()
	defer stop()

	phase, err := w.Run()
	if err != nil {
		w.Log.Error("worker: exited with error", "error", err)
		return cli.ExitFailure
	}
	w.Log.Info("worker: exiting", "phase", phase)
	return cli.ExitSuccess
}

// echoHandler is the default, protocol-agnostic connection handler:
// it exists only so the worker's AcceptLoop and drain phase have real
// traffic to process and wait out (HTTP handling itself is out of
// scope, spec §1), grounded on the teacher's SocketHandoff demo
// handler's shape.
func echoHandler(conn net.Conn, timers *worker.Tree) {
	defer conn.Close()
	tm := timers.Add(30 * time.Second)
	defer timers.Remove(tm)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	reply := "nginxcore worker pid=" + strconv.Itoa(os.Getpid()) + "\n"
	_, _ = conn.Write(append([]byte(reply), buf[:n]...))
}

// pidPathFromConfig resolves the pid file the -s control client should
// signal by parsing configPath the same way a real build would,
// falling back to the documented default if parsing fails (spec §3
// "pid defaults to /var/run/nginxcore.pid").
func pidPathFromConfig(parser coreconf.LineParser, configPath string) string {
	cfg := coreconf.NewPreParse()
	if err := parser.Parse(configPath, cfg); err != nil {
		return "/var/run/nginxcore.pid"
	}
	cfg.ApplyDefaults()
	return cfg.Pid
}
