package logging

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PionLog routes pion's scoped loggers into zerolog.
type PionLog struct {
	log zerolog.Logger
}

// NewPionFactory returns a pion LoggerFactory writing through the global logger.
// Pion is chatty, so it never logs below level.
func NewPionFactory(level zerolog.Level) *PionLog {
	return &PionLog{log: log.Logger.Level(level).With().Str("mod", "pion").Logger()}
}

func (p *PionLog) NewLogger(scope string) logging.LeveledLogger {
	return &PionLog{log: p.log.With().Str("scope", scope).Logger()}
}

func (p *PionLog) Trace(msg string)                  { p.log.Trace().Msg(msg) }
func (p *PionLog) Tracef(format string, args ...any) { p.log.Trace().Msgf(format, args...) }
func (p *PionLog) Debug(msg string)                  { p.log.Debug().Msg(msg) }
func (p *PionLog) Debugf(format string, args ...any) { p.log.Debug().Msgf(format, args...) }
func (p *PionLog) Info(msg string)                   { p.log.Info().Msg(msg) }
func (p *PionLog) Infof(format string, args ...any)  { p.log.Info().Msgf(format, args...) }
func (p *PionLog) Warn(msg string)                   { p.log.Warn().Msg(msg) }
func (p *PionLog) Warnf(format string, args ...any)  { p.log.Warn().Msgf(format, args...) }
func (p *PionLog) Error(msg string)                  { p.log.Error().Msg(msg) }
func (p *PionLog) Errorf(format string, args ...any) { p.log.Error().Msgf(format, args...) }
