// Package klog provides the kernel's own tick-timestamped log sink
// (spec.md §6 "diagnostic output"), wrapping an io.Writer the way the
// teacher wraps os.Stdout/file sinks with the standard library's log
// package (biscuit/src/kernel/chentry.go, biscuit/src/ufs/ufs.go) rather
// than a third-party structured logger — nothing in the retrieval pack's
// teacher or sibling examples reaches for one, so this is the teacher's
// own ambient choice, carried forward rather than upgraded.
package klog

import (
	"fmt"
	"io"
	"sync"
)

/// Level enumerates log severities.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

/// Clock is the minimal tick source klog needs to timestamp a line; both
/// timer.Ticker and a test fake satisfy it.
type Clock interface {
	NowTicks() uint64
}

/// Logger writes tick-stamped lines to an underlying sink.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	clock  Clock
	min    Level
}

/// New creates a Logger writing to out, stamping each line with clock's
/// current tick, filtering anything below min.
func New(out io.Writer, clock Clock, min Level) *Logger {
	return &Logger{out: out, clock: clock, min: min}
}

func (l *Logger) log(level Level, component, format string, args ...any) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "[%10d] %s %s: %s\n", l.clock.NowTicks(), level, component, msg)
}

/// Debugf logs at Debug level.
func (l *Logger) Debugf(component, format string, args ...any) { l.log(Debug, component, format, args...) }

/// Infof logs at Info level.
func (l *Logger) Infof(component, format string, args ...any) { l.log(Info, component, format, args...) }

/// Warnf logs at Warn level.
func (l *Logger) Warnf(component, format string, args ...any) { l.log(Warn, component, format, args...) }

/// Errorf logs at Error level.
func (l *Logger) Errorf(component, format string, args ...any) { l.log(Error, component, format, args...) }
