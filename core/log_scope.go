package core

import "github.com/hupe1980/flowmesh/logging"

// logScope is embedded by the context types so components log through the
// context they hold. Derived scopes attach fields to every entry.
type logScope struct {
	logger logging.Logger
}

func newLogScope(l logging.Logger) *logScope {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &logScope{logger: l}
}

// with derives a scope whose entries carry args.
func (s *logScope) with(args ...any) *logScope {
	return &logScope{logger: logging.With(s.logger, args...)}
}

// Logger returns the scope's logger.
func (s *logScope) Logger() logging.Logger { return s.logger }

func (s *logScope) LogDebug(msg string, args ...any) { s.logger.Debug(msg, args...) }

func (s *logScope) LogInfo(msg string, args ...any) { s.logger.Info(msg, args...) }

func (s *logScope) LogWarn(msg string, args ...any) { s.logger.Warn(msg, args...) }

func (s *logScope) LogError(msg string, args ...any) { s.logger.Error(msg, args...) }
