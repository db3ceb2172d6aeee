package cli

import (
	kingpin "github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blobmirror/blobmirror/logging"
)

var (
	logLevel = app.Flag("log-level", "Log level.").Default("info").Enum("debug", "info", "warn", "error")

	appLogger *zap.SugaredLogger
)

func init() {
	app.PreAction(initializeLogging)
}

func initializeLogging(_ *kingpin.ParseContext) error {
	level := zapcore.InfoLevel

	switch *logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	appLogger = l.Sugar()

	return nil
}

// appLoggerForModule adapts the zap logger to per-module loggers attached to
// the context.
func appLoggerForModule(module string) logging.Logger {
	if appLogger == nil {
		return logging.NullLogger()
	}

	return appLogger.Named(module)
}
