// Package logging provides loggers for the rest of the codebase.
package logging

import "context"

// Logger is used to emit logs from blobmirror components. It is deliberately
// compatible with zap.SugaredLogger so production can bind one directly.
type Logger interface {
	Debugf(msg string, args ...interface{})
	Debugw(msg string, keyValuePairs ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

// LoggerForModuleFunc returns a logger for a given module name.
type LoggerForModuleFunc func(module string) Logger

// Module returns a function that provides the logger for a given module from
// the provided context.
func Module(module string) func(ctx context.Context) Logger {
	return func(ctx context.Context) Logger {
		if l, ok := ctx.Value(loggerKey).(LoggerForModuleFunc); ok && l != nil {
			return l(module)
		}

		return nullLogger{}
	}
}
