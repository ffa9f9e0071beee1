package logger

import "context"

// LoggerContext accumulates key/value attributes across the lifetime of an
// operation so related log lines share the same fields without re-passing
// them at every call site.
type LoggerContext struct {
	logger *Logger
	attrs  []any
}

// NewLoggerContext creates a LoggerContext wrapping the provided logger.
func NewLoggerContext(logger *Logger) *LoggerContext {
	return &LoggerContext{logger: logger}
}

// Add appends key/value pairs that will be attached to subsequent log calls.
func (lc *LoggerContext) Add(args ...any) {
	lc.attrs = append(lc.attrs, args...)
}

// Debug logs at debug level with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger.Debugc(ctx, 3, msg, append(lc.attrs, args...)...)
}

// Info logs at info level with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger.Infoc(ctx, 3, msg, append(lc.attrs, args...)...)
}

// Warn logs at warn level with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger.Warnc(ctx, 3, msg, append(lc.attrs, args...)...)
}

// Error logs at error level with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger.Errorc(ctx, 3, msg, append(lc.attrs, args...)...)
}
