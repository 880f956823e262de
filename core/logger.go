package core

// Logger is any service that can log application events, with an optional
// authenticated user attached for error reporting.
// expected args: error, map[string]interface{}, auth user
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
