// Package logging provides the zap-backed ILogger implementation used
// across the core.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gridcore/internal/core"
)

// ZapLogger adapts a *zap.SugaredLogger to core.ILogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a console-encoded zap logger at the given level.
// levelStr accepts debug/info/warn/error, defaulting to info on an
// unrecognized value.
func NewLogger(levelStr string) *ZapLogger {
	level := parseLevel(levelStr)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core_ := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)

	l := zap.New(core_, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{sugar: l.Sugar()}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *ZapLogger) Debug(msg string, fields ...interface{}) { z.sugar.Debugw(msg, fields...) }
func (z *ZapLogger) Info(msg string, fields ...interface{})  { z.sugar.Infow(msg, fields...) }
func (z *ZapLogger) Warn(msg string, fields ...interface{})  { z.sugar.Warnw(msg, fields...) }
func (z *ZapLogger) Error(msg string, fields ...interface{}) { z.sugar.Errorw(msg, fields...) }
func (z *ZapLogger) Fatal(msg string, fields ...interface{}) { z.sugar.Fatalw(msg, fields...) }

// WithField returns a logger carrying one additional structured field.
func (z *ZapLogger) WithField(key string, value interface{}) core.ILogger {
	return &ZapLogger{sugar: z.sugar.With(key, value)}
}

// WithFields returns a logger carrying additional structured fields.
func (z *ZapLogger) WithFields(fields map[string]interface{}) core.ILogger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &ZapLogger{sugar: z.sugar.With(args...)}
}

// Sync flushes any buffered log entries. Call before process exit.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

var globalLogger core.ILogger

func init() {
	globalLogger = NewLogger("info")
}

// SetGlobalLogger sets the package-level logger used by the convenience
// functions below.
func SetGlobalLogger(logger core.ILogger) {
	globalLogger = logger
}

// GetGlobalLogger returns the package-level logger.
func GetGlobalLogger() core.ILogger {
	return globalLogger
}

func Debug(msg string, fields ...interface{}) { globalLogger.Debug(msg, fields...) }
func Info(msg string, fields ...interface{})  { globalLogger.Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { globalLogger.Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { globalLogger.Error(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { globalLogger.Fatal(msg, fields...) }
