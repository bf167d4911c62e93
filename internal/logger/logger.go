package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSize    = 50 // megabytes per file before rotation
	maxBackups = 30
	maxAge     = 28 // days
)

// Setup builds the process logger. Mode "release" logs JSON at info level,
// anything else logs development output at debug level. Both tee into a
// rotating file when logFile is set.
func Setup(logFile, mode string) (*zap.Logger, error) {
	if mode == "release" {
		return NewProductionLogger(logFile)
	}
	return NewDevelopmentLogger(logFile)
}

func rotateWriteSyncer(logFile string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	})
}

func withFile(logFile string, encoder zapcore.EncoderConfig, level zapcore.Level) zap.Option {
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		if logFile == "" {
			return c
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), rotateWriteSyncer(logFile), level)
		return zapcore.NewTee(c, core)
	})
}

func NewProductionLogger(logFile string) (*zap.Logger, error) {
	c := zap.NewProductionConfig()
	c.DisableCaller = true
	c.DisableStacktrace = true

	return c.Build(withFile(logFile, zap.NewProductionEncoderConfig(), zap.InfoLevel))
}

func NewDevelopmentLogger(logFile string) (*zap.Logger, error) {
	c := zap.NewDevelopmentConfig()

	return c.Build(withFile(logFile, zap.NewDevelopmentEncoderConfig(), zap.DebugLevel))
}
