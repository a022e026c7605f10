package logsvc

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/escola/core"
)

type SentryLogger struct {
	*ZapLogger
	hub *sentry.Hub
}

var _ core.Logger = (*SentryLogger)(nil)

// NewSentryLogger initialises the sentry client; the returned func flushes pending events.
func NewSentryLogger(zl *zap.Logger, conf *core.Config) (*SentryLogger, func(), error) {
	l := &SentryLogger{ZapLogger: NewZapLogger(zl)}
	if conf.SentryDSN == "" {
		return l, func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         conf.SentryDSN,
		Environment: conf.Env,
		Release:     conf.Build,
	})
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "initialising sentry")
	}
	l.hub = sentry.CurrentHub()
	return l, func() { sentry.Flush(2 * time.Second) }, nil
}

// capture reports warnings and above; the first error arg is sent as an exception.
func (l *SentryLogger) capture(lvl sentry.Level, msg string, args []interface{}) {
	if l.hub == nil {
		return
	}
	hub := l.hub.Clone()
	var exc error
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(lvl)
		for _, arg := range args {
			switch a := arg.(type) {
			case core.Person:
				scope.SetUser(sentry.User{ID: a.ID, Email: a.Email})
			case map[string]interface{}:
				scope.SetExtras(a)
			case error:
				if exc == nil {
					exc = a
				}
			}
		}
	})
	if exc != nil {
		hub.CaptureException(errors.WithMessage(exc, msg))
		return
	}
	hub.CaptureMessage(msg)
}

func (l *SentryLogger) Warn(msg string, args ...interface{}) {
	l.capture(sentry.LevelWarning, msg, args)
	l.log(zapcore.WarnLevel, msg, args)
}

func (l *SentryLogger) Error(msg string, args ...interface{}) {
	l.capture(sentry.LevelError, msg, args)
	l.log(zapcore.ErrorLevel, msg, args)
}

func (l *SentryLogger) Fatal(msg string, args ...interface{}) {
	l.capture(sentry.LevelFatal, msg, args)
	sentry.Flush(2 * time.Second)
	l.log(zapcore.FatalLevel, msg, args)
}
