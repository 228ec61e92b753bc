package pion

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's subsystem loggers into zerolog.
type LoggerFactory struct {
	// Level is the lowest level forwarded; pion is chatty at debug.
	Level zerolog.Level
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := log.With().Str("component", "pion").Str("scope", scope).Logger().Level(f.Level)
	return leveledLogger{l: l}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (p leveledLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p leveledLogger) Tracef(format string, args ...any) {
	p.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (p leveledLogger) Debug(msg string) { p.l.Debug().Msg(msg) }
func (p leveledLogger) Debugf(format string, args ...any) {
	p.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (p leveledLogger) Info(msg string) { p.l.Info().Msg(msg) }
func (p leveledLogger) Infof(format string, args ...any) {
	p.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (p leveledLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p leveledLogger) Warnf(format string, args ...any) {
	p.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (p leveledLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p leveledLogger) Errorf(format string, args ...any) {
	p.l.Error().Msg(fmt.Sprintf(format, args...))
}
