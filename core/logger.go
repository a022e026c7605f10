package core

// Logger is implemented by the application loggers.
// Args may carry an error, a map of extra data and the logged-in account.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the account on whose behalf something is logged.
type Person struct {
	ID    string
	Email string
}
