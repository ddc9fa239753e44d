// Package logging builds the process-scoped slog logger used by the scraper
// and counts the errors reported through it.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Options configures the logger returned by New.
type Options struct {
	// Verbose echoes records to Console.
	Verbose bool
	Console *os.File
	// LogFile receives every record as JSON when non-empty.
	LogFile string
}

// Logger bundles the slog logger with its error tally and owned resources.
type Logger struct {
	*slog.Logger
	Tally *Tally
	Level *slog.LevelVar

	closers []io.Closer
}

// New builds the logger. Console output is text on a terminal and JSON
// otherwise.
func New(opts Options) (*Logger, error) {
	level := &slog.LevelVar{}
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if opts.LogFile != "" {
		if dir := filepath.Dir(opts.LogFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory %q: %w", dir, err)
			}
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if opts.Verbose {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		handlerOpts := &slog.HandlerOptions{Level: level}
		if isTerminal(console) {
			handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(console, handlerOpts))
		}
	}

	tally := NewTally(Fanout(handlers...))
	return &Logger{
		Logger:  slog.New(tally),
		Tally:   tally,
		Level:   level,
		closers: closers,
	}, nil
}

// Close releases files opened by New.
func (l *Logger) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tally wraps a handler and counts records at error level or above, whether
// or not the wrapped handler accepts them.
type Tally struct {
	next   slog.Handler
	errors *atomic.Int64
}

// NewTally wraps next.
func NewTally(next slog.Handler) *Tally {
	return &Tally{next: next, errors: &atomic.Int64{}}
}

// Errors returns the number of error records seen so far.
func (t *Tally) Errors() int {
	return int(t.errors.Load())
}

func (t *Tally) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || t.next.Enabled(ctx, level)
}

func (t *Tally) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		t.errors.Add(1)
	}
	if !t.next.Enabled(ctx, r.Level) {
		return nil
	}
	// A failing sink must not fail the caller.
	_ = t.next.Handle(ctx, r)
	return nil
}

func (t *Tally) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Tally{next: t.next.WithAttrs(attrs), errors: t.errors}
}

func (t *Tally) WithGroup(name string) slog.Handler {
	return &Tally{next: t.next.WithGroup(name), errors: t.errors}
}

type fanout []slog.Handler

// Fanout sends each record to every handler that accepts its level. Write
// errors from individual handlers are dropped.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
