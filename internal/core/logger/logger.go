package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the application logger. format "json" gives the
// production encoder for log shipping; anything else the console encoder.
func NewLogger(level zapcore.Level, format string) *zap.Logger {
	loggerConfig := zap.NewDevelopmentConfig()
	if format == "json" {
		loggerConfig = zap.NewProductionConfig()
	}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := loggerConfig.Build(zap.Fields(zap.String("service", "qcwarehouse")))
	if nil != err {
		panic(err)
	}

	return logger
}
