package logging

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// PionLoggerFactory bridges this package's per-subsystem logging into pion's
// own LoggerFactory abstraction, which webrtc.SettingEngine requires and which
// does not accept a log/slog.Logger directly. Scopes (pion calls NewLogger once
// per internal component: "ice", "dtls", "sctp", ...) become logrus fields
// rather than separate loggers, since pion's scopes are numerous and transient.
type PionLoggerFactory struct {
	entry *logrus.Entry
}

// NewPionLoggerFactory builds a factory whose output level tracks sub's level
// and is routed to the same stream as the rest of the session's logs.
func NewPionLoggerFactory(sub Subsystem) *PionLoggerFactory {
	base := logrus.New()
	base.SetLevel(logrusLevel(effectiveLevel(sub)))
	return &PionLoggerFactory{entry: base.WithField("subsystem", string(sub))}
}

// NewLogger implements pion/logging.LoggerFactory.
func (f *PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{entry: f.entry.WithField("scope", scope)}
}

type pionLogger struct {
	entry *logrus.Entry
}

func (l *pionLogger) Trace(msg string)                  { l.entry.Trace(msg) }
func (l *pionLogger) Tracef(format string, args ...any)  { l.entry.Tracef(format, args...) }
func (l *pionLogger) Debug(msg string)                   { l.entry.Debug(msg) }
func (l *pionLogger) Debugf(format string, args ...any)  { l.entry.Debugf(format, args...) }
func (l *pionLogger) Info(msg string)                    { l.entry.Info(msg) }
func (l *pionLogger) Infof(format string, args ...any)   { l.entry.Infof(format, args...) }
func (l *pionLogger) Warn(msg string)                    { l.entry.Warn(msg) }
func (l *pionLogger) Warnf(format string, args ...any)   { l.entry.Warnf(format, args...) }
func (l *pionLogger) Error(msg string)                   { l.entry.Error(msg) }
func (l *pionLogger) Errorf(format string, args ...any)  { l.entry.Errorf(format, args...) }

func effectiveLevel(sub Subsystem) slogLevelString {
	mu.RLock()
	defer mu.RUnlock()
	if lv, ok := levelVars[sub]; ok {
		return slogLevelString(lv.Level().String())
	}
	return slogLevelString("info")
}

type slogLevelString string

func logrusLevel(s slogLevelString) logrus.Level {
	switch s {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
