// Package logging provides the logging interface and default
// implementations for firelocal.
//
// Design: a five-method interface (Errorf, Warnf, Infof, Debugf, Fatalf).
// Users can wrap their own structured logger (slog, zap, logrus) if
// needed; StructuredLogger wraps logrus. The engine's default logger is
// Discard; the CLI builds a StructuredLogger when given a config file.
//
// Fatalf behavior: logs at FATAL level and calls the configured
// FatalHandler, if any. No FatalHandler is set by default; the engine
// records its own fault before calling Fatalf. Fatalf does NOT call
// os.Exit.
//
// Component namespace prefixes are used for filtering:
//   - [flush]    — memtable flush
//   - [compact]  — compaction
//   - [wal]      — WAL operations
//   - [manifest] — manifest operations
//   - [recovery] — recovery
//   - [db]       — general engine operations
//   - [txn]      — transaction operations
//   - [rules]    — rules-gate evaluation
//   - [listener] — listener dispatch
package logging

import (
	"fmt"
	"io"
	"log"
	"reflect"
	"sync/atomic"
)

// FatalHandler is called when Fatalf is invoked. It must be safe for
// concurrent use and must not itself call Fatalf.
type FatalHandler func(msg string)

// Level represents the logging level.
type Level int

const (
	// LevelError logs only errors.
	LevelError Level = iota
	// LevelWarn logs warnings and errors.
	LevelWarn
	// LevelInfo logs info, warnings, and errors.
	LevelInfo
	// LevelDebug logs everything including debug messages.
	LevelDebug
)

// String returns the level's name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the interface for engine logging. Implementations must
// be safe for concurrent use: logging may occur from multiple goroutines
// (flush, compaction, listener dispatch) at once.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
	// Fatalf logs a fatal error and triggers the fatal handler. After
	// Fatalf, the engine should transition to a stopped state: writes
	// rejected, reads may continue.
	Fatalf(format string, args ...any)
}

// DefaultLogger writes plain-text lines to an io.Writer. It is safe for
// concurrent use: its level and fatal handler are held atomically and
// log.Logger is thread-safe.
type DefaultLogger struct {
	logger       *log.Logger
	level        atomic.Int32
	fatalHandler atomic.Pointer[FatalHandler]
}

// NewLogger creates a logger writing to w at the given level.
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	l := &DefaultLogger{logger: log.New(w, "", log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

// Level returns the current logging level.
func (l *DefaultLogger) Level() Level {
	return Level(l.level.Load())
}

// SetLevel changes the logging level.
func (l *DefaultLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// SetFatalHandler sets the handler invoked by Fatalf.
func (l *DefaultLogger) SetFatalHandler(h FatalHandler) {
	l.fatalHandler.Store(&h)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	if l.Level() >= LevelError {
		_ = l.logger.Output(2, "ERROR "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	if l.Level() >= LevelWarn {
		_ = l.logger.Output(2, "WARN "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	if l.Level() >= LevelInfo {
		_ = l.logger.Output(2, "INFO "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.Level() >= LevelDebug {
		_ = l.logger.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	_ = l.logger.Output(2, "FATAL "+msg)
	if h := l.fatalHandler.Load(); h != nil {
		(*h)(msg)
	}
}

// Namespace prefixes for log messages, used with Infof/Debugf/etc. to add
// component context: logger.Infof(NSFlush+"flushed %d entries", n).
const (
	NSFlush    = "[flush] "
	NSCompact  = "[compact] "
	NSWAL      = "[wal] "
	NSManifest = "[manifest] "
	NSRecovery = "[recovery] "
	NSDB       = "[db] "
	NSTxn      = "[txn] "
	NSRules    = "[rules] "
	NSListener = "[listener] "
)

// IsNil reports whether l is nil or a typed-nil (a nil pointer boxed in
// the Logger interface, which panics if called directly).
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrDefault returns l if valid, otherwise Discard.
func OrDefault(l Logger) Logger {
	if IsNil(l) {
		return Discard
	}
	return l
}
