package ecs

import "go.uber.org/zap"

// zapLogger adapts a *zap.Logger to the scheduler's Logger interface. args
// are passed straight through to zap's structured, key/value SugaredLogger
// form.
type zapLogger struct {
	base *zap.SugaredLogger
}

// NewZapLogger wraps base for use as a scheduler Logger. A nil base falls
// back to a newly built zap production logger (zap.NewProduction).
func NewZapLogger(base *zap.Logger) Logger {
	if base == nil {
		base, _ = zap.NewProduction()
	}
	return zapLogger{base: base.Sugar()}
}

func (l zapLogger) With(key string, value any) Logger {
	return zapLogger{base: l.base.With(key, value)}
}

func (l zapLogger) Info(msg string, args ...any) {
	l.base.Infow(msg, args...)
}

func (l zapLogger) Error(msg string, args ...any) {
	l.base.Errorw(msg, args...)
}
