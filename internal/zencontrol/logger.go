package zencontrol

// Logger is the narrow logging interface used throughout this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// orNoop returns the given logger, or a no-op logger if nil.
func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
