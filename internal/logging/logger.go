// Package logging provides leveled, contextual logging for the engine.
// Everything goes to stderr: stdout carries the binary triage stream and
// must stay clean. Long-lived components derive a child logger with With
// so every line from a worker lane is tagged with its index and decoder.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the available log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a level name from the config file.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Config holds logging configuration. A nil Output selects stderr; the
// engine never logs to stdout. A nil Config selects LevelInfo.
type Config struct {
	Level  Level
	Output io.Writer
}

// Logger is a leveled key=value logger. With derives children that carry
// permanent fields, so call sites log only what varies per line.
type Logger struct {
	out   *log.Logger
	level Level

	// context is the pre-rendered " k=v ..." suffix inherited from With.
	context string
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	level := LevelInfo
	output := io.Writer(os.Stderr)
	if config != nil {
		level = config.Level
		if config.Output != nil {
			output = config.Output
		}
	}
	// log.Logger serializes writes itself, so concurrent workers cannot
	// interleave lines.
	return &Logger{
		out:   log.New(output, "", log.LstdFlags),
		level: level,
	}
}

// With returns a logger whose lines always carry the given key-value
// pairs, e.g. With("worker", 3, "soname", path) for a worker lane.
func (l *Logger) With(args ...any) *Logger {
	child := *l
	child.context += renderArgs(args)
	return &child
}

// renderArgs converts key-value pairs to a " k=v k=v" suffix. A dangling
// key without a value is dropped.
func renderArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}
	return sb.String()
}

func (l *Logger) log(level Level, msg string, args []any) {
	if level < l.level {
		return
	}
	l.out.Printf("[%s] %s%s%s", level, msg, l.context, renderArgs(args))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args)
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
