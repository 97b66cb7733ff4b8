package flightscout

import (
	"go.uber.org/zap"

	"github.com/flightscout/flightscout/compaction"
)

// zapLogger adapts a zap logger to the compaction.Logger interface used
// throughout the module.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use as a compaction.Logger.
func NewZapLogger(l *zap.Logger) compaction.Logger {
	return &zapLogger{sugar: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *zapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *zapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *zapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
