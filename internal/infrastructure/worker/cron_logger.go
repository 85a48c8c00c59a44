package worker

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	sugar *zap.SugaredLogger
}

// NewCronLogger returns a cron.Logger writing through zap. Info output is
// logged at debug level since cron reports every schedule and wake-up.
func NewCronLogger(logger *zap.Logger) cron.Logger {
	return cronLogger{sugar: logger.Named("cron").Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
