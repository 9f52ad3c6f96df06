// Package logging provides a thin wrapper around zerolog that the rest of
// the codebase logs through. Levels are plain integers so that they can be
// bound to CLI flags.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level controls the verbosity of a Logger.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// LevelIDs maps levels to the names accepted on the command line.
var LevelIDs = map[Level][]string{
	LevelError: {"error"},
	LevelWarn:  {"warn"},
	LevelInfo:  {"info"},
	LevelDebug: {"debug"},
}

// Config holds the settings for a Logger.
type Config struct {
	Level  Level
	Output io.Writer // defaults to os.Stderr
}

// Logger wraps a zerolog.Logger.
type Logger struct {
	zl    zerolog.Logger
	level Level
}

// NewLogger returns a logger configured with c.
func NewLogger(c Config) *Logger {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: out}).
		Level(zerologLevel(c.Level)).
		With().
		Timestamp().
		Logger()
	return &Logger{zl: zl, level: c.Level}
}

// NewNopLogger returns a logger that discards everything. It is intended
// for tests.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop(), level: LevelError}
}

// Level returns the level the logger was configured with.
func (l *Logger) Level() Level {
	return l.level
}

// Zerolog returns the underlying zerolog.Logger for integrations that
// speak zerolog natively.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

func zerologLevel(level Level) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
