package core

// Logger is the application-wide structured logging contract.
// Implementations may inspect args for known types (errors, users) to enrich
// the reported event.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
