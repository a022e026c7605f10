package logsvc

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/escola/core"
)

// NewZap builds the process logger: JSON in production, console otherwise.
func NewZap(level, env string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var cfg zap.Config
	if env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.AddStacktrace(zap.ErrorLevel), zap.AddCallerSkip(2))
}

// ZapLogger only writes to zap; it does not report errors anywhere.
type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl}
}

// NewNopLogger discards everything (tests).
func NewNopLogger() *ZapLogger {
	return &ZapLogger{zl: zap.NewNop()}
}

// fields turns the loosely typed args into zap fields.
// expected args: error, map[string]interface{}, core.Person
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case error:
			flds = append(flds, zap.Error(a))
		case map[string]interface{}:
			for k, v := range a {
				flds = append(flds, zap.Any(k, v))
			}
		case core.Person:
			flds = append(flds, zap.String("account_id", a.ID), zap.String("account_email", a.Email))
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), a))
		}
	}
	return flds
}

func (l *ZapLogger) log(lvl zapcore.Level, msg string, args []interface{}) {
	if ce := l.zl.Check(lvl, msg); ce != nil {
		ce.Write(fields(args)...)
	}
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.log(zap.DebugLevel, msg, args) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.log(zap.InfoLevel, msg, args) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.log(zap.WarnLevel, msg, args) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.log(zap.ErrorLevel, msg, args) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.log(zap.FatalLevel, msg, args) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() { _ = l.zl.Sync() }
