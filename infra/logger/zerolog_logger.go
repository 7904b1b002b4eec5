package logger

import "github.com/rs/zerolog"

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(z zerolog.Logger) *ZerologLogger { return &ZerologLogger{log: z} }

// With returns a child logger carrying an extra field, e.g. the depot of a run.
func (l *ZerologLogger) With(key string, value any) *ZerologLogger {
	return &ZerologLogger{log: l.log.With().Interface(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
