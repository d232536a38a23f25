// Package logger provides the structured logging facade used across the
// module. Every package that logs takes a [Logger] rather than a concrete
// *zap.Logger, so tests can inject a no-op or capturing implementation.
package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Logger is a structured, leveled logger. Key-value pairs follow the
// alternating key/value convention (key string, value any, ...).
type Logger interface {
	// With returns a Logger that always includes the given key-value pairs.
	With(kv ...any) Logger

	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)

	// Fatal logs at fatal level then terminates the process via os.Exit(1).
	Fatal(msg string, kv ...any)

	// Sync flushes any buffered log entries.
	Sync() error
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New wraps an existing *zap.Logger as a Logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.s.Fatalw(msg, kv...) }
func (l *zapLogger) Sync() error                 { return l.s.Sync() }

// MustProduction builds a production-tuned JSON logger (matching zap's
// NewProduction defaults) and panics if construction fails, which only
// happens on a broken zap config.
func MustProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// MustDevelopment builds a human-readable console development logger.
func MustDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// nopLogger discards everything. Used as the initial default so packages
// never need a nil check before logging.
type nopLogger struct{}

func (nopLogger) With(kv ...any) Logger          { return nopLogger{} }
func (nopLogger) Debug(msg string, kv ...any)    {}
func (nopLogger) Info(msg string, kv ...any)     {}
func (nopLogger) Warn(msg string, kv ...any)     {}
func (nopLogger) Error(msg string, kv ...any)    {}
func (nopLogger) Fatal(msg string, kv ...any)    { os.Exit(1) }
func (nopLogger) Sync() error                    { return nil }

var (
	defaultMu  sync.RWMutex
	defaultLog atomic.Value // stores Logger
)

func init() {
	defaultLog.Store(Logger(nopLogger{}))
}

// Default returns the process-wide default logger. Safe for concurrent use.
func Default() Logger {
	return defaultLog.Load().(Logger)
}

// SetDefault installs l as the process-wide default logger.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l == nil {
		l = nopLogger{}
	}
	defaultLog.Store(l)
}

// SyncDefault flushes the default logger. Call via defer in main().
func SyncDefault() {
	_ = Default().Sync()
}

// Fatal logs at fatal level on the default logger then exits the process.
func Fatal(msg string, kv ...any) {
	Default().Fatal(msg, kv...)
}
