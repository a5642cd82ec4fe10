// Package rsyncos collects the ambient process-level dependencies
// (standard streams, logging) that every role needs but that have
// nothing to do with the wire protocol itself, mirroring the teacher's
// own osenv plumbing through maincmd.
package rsyncos

import (
	"fmt"
	"io"
)

// Env bundles the standard streams and a logging sink so that callers
// never reach for os.Stdin/os.Stdout/os.Stderr or the log package
// directly, keeping every role testable against in-memory buffers.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Verbose gates the chatty per-file/per-frame log lines the way
	// the teacher's rt.Opts.Verbose does in receiver.go.
	Verbose bool

	// logf defaults to writing a formatted line to Stderr; tests may
	// override it via WithLogf to capture output.
	logf func(format string, args ...any)
}

// New returns an Env wired to the given streams, logging to stderr by
// default.
func New(stdin io.Reader, stdout, stderr io.Writer) *Env {
	e := &Env{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	e.logf = e.defaultLogf
	return e
}

func (e *Env) defaultLogf(format string, args ...any) {
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// Logf writes a formatted diagnostic line, the way the teacher's
// osenv.Logf/rt.Logger.Printf calls do throughout maincmd and the
// receiver.
func (e *Env) Logf(format string, args ...any) {
	if e.logf == nil {
		e.logf = e.defaultLogf
	}
	e.logf(format, args...)
}

// VerboseLogf is Logf gated on Verbose, matching the teacher's
// recurring `if rt.Opts.Verbose { rt.Logger.Printf(...) }` pattern
// without repeating the guard at every call site.
func (e *Env) VerboseLogf(format string, args ...any) {
	if !e.Verbose {
		return
	}
	e.Logf(format, args...)
}

// WithLogf overrides the logging sink, used by tests that want to
// capture log lines instead of writing to Stderr.
func (e *Env) WithLogf(fn func(format string, args ...any)) {
	e.logf = fn
}
