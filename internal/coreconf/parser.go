package coreconf

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Parser is the contract the Cycle Builder calls at spec §4.2 step 6
// ("Parse the configuration file into the new cycle. Parse failures
// abort the build."). The full configuration grammar is explicitly out
// of scope (spec §1); this interface is what lets internal/cycle stay
// ignorant of whatever grammar a real deployment plugs in.
type Parser interface {
	// Parse reads path and populates cfg in place. A non-nil error
	// aborts the cycle build.
	Parse(path string, cfg *Config) error
}

// CommandSet is the minimal shape LineParser needs from the module
// registry's command table (spec §9 "polymorphic directive handler"):
// a name-keyed map of setters that each take the already-typed config
// value and raw string arguments. internal/coremodule builds this
// from its Descriptor's Commands.
type CommandSet map[string]func(cfg any, args []string) error

// LineParser is the minimal default Parser: one directive per line,
// "name arg...;" terminated by a semicolon, "#" comments, blank lines
// ignored. Directive dispatch goes through Commands rather than a
// hardcoded switch, so a non-core module registered alongside core
// could extend the grammar without LineParser itself changing (spec
// §9's polymorphic-handler design note).
type LineParser struct {
	Commands CommandSet
}

func (p LineParser) Parse(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("coreconf: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSuffix(line, ";")
		fields := strings.Fields(line)
		if len(fields) < 1 {
			continue
		}
		directive, args := fields[0], fields[1:]
		set, ok := p.Commands[directive]
		if !ok {
			return fmt.Errorf("coreconf: %s:%d: unknown directive %q", path, lineNo, directive)
		}
		if err := set(cfg, args); err != nil {
			return fmt.Errorf("coreconf: %s:%d: directive %q: %w", path, lineNo, directive, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("coreconf: read %s: %w", path, err)
	}
	return nil
}
