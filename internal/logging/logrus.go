package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// StructuredLogger adapts a logrus.Logger to the Logger interface, giving
// structured, leveled output instead of DefaultLogger's plain text.
type StructuredLogger struct {
	entry        *logrus.Entry
	fatalHandler FatalHandler
}

// NewStructuredLogger wraps logger (or logrus.StandardLogger() if nil) at
// the given level. component, if non-empty, is attached as a "component"
// field on every entry.
func NewStructuredLogger(logger *logrus.Logger, level logrus.Level, component string) *StructuredLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.SetLevel(level)
	entry := logrus.NewEntry(logger)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &StructuredLogger{entry: entry}
}

func (l *StructuredLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *StructuredLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *StructuredLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *StructuredLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

// Fatalf logs at error level (not logrus.Entry.Fatal, which calls
// os.Exit) and invokes the configured FatalHandler, matching Logger's
// contract that Fatalf never terminates the process itself.
func (l *StructuredLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.entry.Error("FATAL: " + msg)
	if l.fatalHandler != nil {
		l.fatalHandler(msg)
	}
}

// SetFatalHandler sets the handler invoked by Fatalf.
func (l *StructuredLogger) SetFatalHandler(h FatalHandler) {
	l.fatalHandler = h
}
