// Package log provides the logging facade used throughout the association
// subsystem. It wraps zerolog and mirrors the teacher runtime's log package:
// a small interface, a package-level DefaultLogger, and a DiscardLogger for
// tests that don't care about log output.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging interface every component in this module depends on.
// Never depend on zerolog directly outside this package.
type Logger interface {
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Warn(...any)
	Warnf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

// DefaultLogger writes to stderr at every level, debug included; New sets
// no minimum level.
var DefaultLogger = New(os.Stderr)

// DiscardLogger throws every line away; use it in tests.
var DiscardLogger = New(io.Discard)

type logger struct {
	underlying zerolog.Logger
}

var _ Logger = (*logger)(nil)

// New creates a Logger that writes to w.
func New(w io.Writer) Logger {
	return &logger{underlying: zerolog.New(w).With().Timestamp().Logger()}
}

func (l *logger) Debug(v ...any) { l.underlying.Debug().Msg(fmt.Sprint(v...)) }

func (l *logger) Debugf(format string, v ...any) { l.underlying.Debug().Msgf(format, v...) }

func (l *logger) Info(v ...any) { l.underlying.Info().Msg(fmt.Sprint(v...)) }

func (l *logger) Infof(format string, v ...any) { l.underlying.Info().Msgf(format, v...) }

func (l *logger) Warn(v ...any) { l.underlying.Warn().Msg(fmt.Sprint(v...)) }

func (l *logger) Warnf(format string, v ...any) { l.underlying.Warn().Msgf(format, v...) }

func (l *logger) Error(v ...any) { l.underlying.Error().Msg(fmt.Sprint(v...)) }

func (l *logger) Errorf(format string, v ...any) { l.underlying.Error().Msgf(format, v...) }

// Info logs to the DefaultLogger at info level.
func Info(v ...any) { DefaultLogger.Info(v...) }

// Infof logs to the DefaultLogger at info level.
func Infof(format string, v ...any) { DefaultLogger.Infof(format, v...) }

// Warn logs to the DefaultLogger at warn level.
func Warn(v ...any) { DefaultLogger.Warn(v...) }

// Warnf logs to the DefaultLogger at warn level.
func Warnf(format string, v ...any) { DefaultLogger.Warnf(format, v...) }

// Error logs to the DefaultLogger at error level.
func Error(v ...any) { DefaultLogger.Error(v...) }

// Errorf logs to the DefaultLogger at error level.
func Errorf(format string, v ...any) { DefaultLogger.Errorf(format, v...) }
