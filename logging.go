package states

import "time"

// DiagnosticEvent describes an engine-internal condition that does not
// surface through a cell's status: a decode failure during rehydration, a
// stale async resolution dropped by supersede, or a rehydration read fault.
type DiagnosticEvent struct {
	Cell string
	Key  string
	Op   string
	Err  error
	At   time.Time
}

// DiagnosticLogger records diagnostic events.
type DiagnosticLogger interface {
	LogDiagnostic(DiagnosticEvent)
}

// DiagnosticLoggerFunc adapts a function to DiagnosticLogger.
type DiagnosticLoggerFunc func(DiagnosticEvent)

// LogDiagnostic implements DiagnosticLogger.
func (f DiagnosticLoggerFunc) LogDiagnostic(event DiagnosticEvent) {
	if f != nil {
		f(event)
	}
}

type noopDiagnosticLogger struct{}

func (noopDiagnosticLogger) LogDiagnostic(DiagnosticEvent) {}
