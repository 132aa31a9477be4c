package transport

import (
	"github.com/pion/logging"

	"github.com/1ureka/rtcall/internal/util"
)

// NewLoggerFactory returns a pion LoggerFactory that writes through the
// application's pterm logger. pion is chatty below warning level, so info and
// debug output is only forwarded when verbose is set.
func NewLoggerFactory(verbose bool) logging.LoggerFactory {
	level := logging.LogLevelWarn
	if verbose {
		level = logging.LogLevelDebug
	}
	return &loggerFactory{level: level}
}

type loggerFactory struct {
	level logging.LogLevel
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{scope: util.Scope("pion/" + scope), level: f.level}
}

// scopedLogger implements logging.LeveledLogger. Trace is dropped.
type scopedLogger struct {
	scope util.Scope
	level logging.LogLevel
}

func (l *scopedLogger) Trace(string)          {}
func (l *scopedLogger) Tracef(string, ...any) {}

func (l *scopedLogger) Debug(msg string) { l.Debugf("%s", msg) }
func (l *scopedLogger) Debugf(format string, args ...any) {
	if l.level >= logging.LogLevelDebug {
		l.scope.Debugf(format, args...)
	}
}

func (l *scopedLogger) Info(msg string) { l.Infof("%s", msg) }
func (l *scopedLogger) Infof(format string, args ...any) {
	if l.level >= logging.LogLevelInfo {
		l.scope.Infof(format, args...)
	}
}

func (l *scopedLogger) Warn(msg string) { l.Warnf("%s", msg) }
func (l *scopedLogger) Warnf(format string, args ...any) {
	if l.level >= logging.LogLevelWarn {
		l.scope.Warnf(format, args...)
	}
}

func (l *scopedLogger) Error(msg string) { l.Errorf("%s", msg) }
func (l *scopedLogger) Errorf(format string, args ...any) {
	if l.level >= logging.LogLevelError {
		l.scope.Errorf(format, args...)
	}
}
