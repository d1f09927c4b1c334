package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger bridges cron.Logger to zap. Cron's info output (schedule, wake,
// run) is chatty, so it goes to debug.
type cronLogger struct {
	log *zap.SugaredLogger
}

var _ cron.Logger = cronLogger{}

func newCronLogger(l *zap.Logger) cronLogger {
	return cronLogger{log: l.Named("cron").Sugar()}
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
