package core

// Logger is the application logger.
// args may contain errors, map[string]interface{} extras and at most one user.User
// (implementations attach it as the person the event relates to).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
