package leads

import (
	"context"

	"github.com/sirupsen/logrus"
)

// logger only logs when the debugger is enabled, except for warnings which always go out
type logger struct {
	entry           *logrus.Entry
	debuggerEnabled bool
}

func newLogger(entry *logrus.Entry, debuggerEnabled bool) *logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &logger{
		entry:           entry.WithField("component", "leads"),
		debuggerEnabled: debuggerEnabled,
	}
}

func (l *logger) debug(ctx context.Context, s string, args ...interface{}) {
	if l.debuggerEnabled {
		l.entry.WithContext(ctx).Debugf(s, args...)
	}
}

func (l *logger) warn(ctx context.Context, err error, s string, args ...interface{}) {
	l.entry.WithContext(ctx).WithError(err).Warnf(s, args...)
}

func (l *logger) WithField(key string, value interface{}) *logger {
	return &logger{
		entry:           l.entry.WithField(key, value),
		debuggerEnabled: l.debuggerEnabled,
	}
}
