// Package logging provides the leveled logger shared by all stages of a run.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// LevelIds maps levels to their textual flag values.
var LevelIds = map[Level][]string{
	LevelError: {"error"},
	LevelWarn:  {"warn"},
	LevelInfo:  {"info"},
	LevelDebug: {"debug"},
}

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var FormatIds = map[Format][]string{
	FormatText: {"text"},
	FormatJSON: {"json"},
}

type Config struct {
	Level  Level
	Format Format
	Output io.Writer // defaults to stderr
}

// Logger is a thin wrapper over zerolog exposing printf style helpers. A nil
// *Logger discards everything.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == FormatText {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: true}
	}

	l := zerolog.New(out).With().Timestamp().Logger().Level(zeroLevel(cfg.Level))
	return &Logger{log: l}
}

func NewNop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func zeroLevel(l Level) zerolog.Level {
	switch l {
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

// With returns a logger adding key=value to every entry.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{log: l.log.With().Interface(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}
