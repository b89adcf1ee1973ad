package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"classattend/internal/config"
)

// New builds the process logger. Production uses JSON output, everything else the console encoder.
func New(cfg config.App, service string) *zap.Logger {
	var zc zap.Config
	if cfg.Production() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.LogLevel))

	logger, err := zc.Build()
	if err != nil {
		panic(err)
	}

	return logger.With(
		zap.String("service", service),
		zap.String("environment", cfg.Env),
	)
}

// ParseLevel maps LOG_LEVEL values to zap levels, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
