// Package log provides the process-wide structured logger. It wraps
// go.uber.org/zap the same way the teacher's own logging package does:
// a package-level sugared logger for printf-style call sites, and a
// plain *zap.Logger for structured field logging.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = newLogger()
)

func newLogger() *zap.Logger {
	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    NewDefaultEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	return l
}

// NewDefaultEncoderConfig returns the zapcore.EncoderConfig used by the
// process logger.
func NewDefaultEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// SetLevel adjusts the minimum level of the process logger, toggled by the
// --verbose CLI flag.
func SetLevel(lvl zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(lvl)
}

// L returns the underlying structured logger for call sites that want
// zap.Field arguments.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Fatal accepts either an error or a plain message, matching call sites like
// log.Fatal(err).
func Fatal(args ...interface{}) { L().Sugar().Fatal(args...) }

func Debugf(format string, args ...interface{}) { L().Sugar().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().Sugar().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { L().Sugar().Fatalf(format, args...) }
