package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel accepts zap level names, case-insensitively
func ParseLevel(level string) (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the service logger. The returned level can be changed at
// runtime and is shared by every logger derived from the result.
func NewLogger(cfg LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, zc.Level, nil
}

// LogLevelHandler applies logging.level from a reloaded configuration
func LogLevelHandler(level zap.AtomicLevel, logger *zap.Logger) ChangeHandler {
	return func(cfg *Config) error {
		l, err := ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		if l != level.Level() {
			logger.Info("Log level changed",
				zap.String("from", level.Level().String()),
				zap.String("to", l.String()),
			)
			level.SetLevel(l)
		}
		return nil
	}
}
