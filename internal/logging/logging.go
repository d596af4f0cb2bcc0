// Package logging provides the per-cycle log sink every Cycle opens
// (spec.md §3 "a log sink", §4.2 step 3). It is the structured upgrade
// of the teacher's hand-rolled ANSI-colored log.Printf wrapper
// (graceful_restarts/*), built instead on log/slog the way
// giantswarm-muster/pkg/logging builds its subsystem loggers — the
// spec needs a leveled, reopenable sink, which slog models directly.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level mirrors slog's levels under names that read naturally next to
// nginx's own severity vocabulary (spec §7 "alert/critical severity").
type Level = slog.Level

const (
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
	// LevelAlert has no slog equivalent; map it above Error so it never
	// gets filtered out by a level gate set to Error.
	LevelAlert Level = slog.LevelError + 4
)

// Sink is one cycle's log target: a live *slog.Logger plus the
// underlying file (if any) so Reopen can close-and-reopen by path
// (spec §4.2, §4.4, §6 "reopen-logs").
type Sink struct {
	mu     sync.Mutex
	path   string // empty means stderr, never reopened
	file   *os.File
	logger *slog.Logger
	cycle  string // cycle generation id, attached to every record
}

// New opens path in append mode (or uses stderr if path is empty) and
// returns a Sink tagged with cycleID (see internal/cycle's use of
// google/uuid for generation ids).
func New(path string, level Level, cycleID string) (*Sink, error) {
	s := &Sink{path: path, cycle: cycleID}
	if err := s.open(level); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) open(level Level) error {
	var w io.Writer
	if s.path == "" {
		w = os.Stderr
	} else {
		f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logging: open %s: %w", s.path, err)
		}
		s.file = f
		w = f
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	s.logger = slog.New(h).With("cycle", s.cycle)
	return nil
}

// Reopen closes the current file (if any) and reopens the same path.
// It is idempotent: calling it twice in a row leaves the descriptor in
// the same state as calling it once (spec §8 "Reopen-logs is
// idempotent").
func (s *Sink) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := LevelInfo
	if s.logger != nil && s.logger.Enabled(context.Background(), slog.LevelDebug) {
		level = LevelDebug
	}
	old := s.file
	if err := s.open(level); err != nil {
		return err
	}
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Close releases the underlying file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Path reports the file this sink writes to ("" for stderr).
func (s *Sink) Path() string { return s.path }

// For returns a subsystem-scoped logger, mirroring muster's
// per-subsystem tagging (e.g. "master", "worker", "cycle-builder").
func (s *Sink) For(subsystem string) *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger.With("subsystem", subsystem)
}

// Alert logs at the alert severity the spec reserves for operational
// errors that are logged but never alter control flow (spec §7 class 3).
func Alert(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelAlert, msg, args...)
}
