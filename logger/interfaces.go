package logger

// Logger is the leveled logging facade used throughout the proxy. Call
// sites depend on this interface rather than a concrete type, so tests
// can swap in a recording fake.
type Logger interface {
	Log(format string)
	Logf(format string, v ...any)

	Warn(format string)
	Warnf(format string, v ...any)

	Debug(format string)
	Debugf(format string, v ...any)

	Error(format string)
	Errorf(format string, v ...any)

	Fatal(format string)
	Fatalf(format string, v ...any)
}
