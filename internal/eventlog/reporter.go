package eventlog

// Reporter is the narrow logging surface handed to the orchestrator and stage
// work functions.
type Reporter interface {
	Info(source, message string, payload any)
	Success(source, message string, payload any)
	Warning(source, message string, payload any)
	Error(source, message string, payload any)
	Debug(source, message string, payload any)
}

// Info appends an info entry. *Log satisfies Reporter.
func (l *Log) Info(source, message string, payload any) {
	l.Append(LevelInfo, message, payload, source)
}

// Success appends a success entry.
func (l *Log) Success(source, message string, payload any) {
	l.Append(LevelSuccess, message, payload, source)
}

// Warning appends a warning entry.
func (l *Log) Warning(source, message string, payload any) {
	l.Append(LevelWarning, message, payload, source)
}

// Error appends an error entry.
func (l *Log) Error(source, message string, payload any) {
	l.Append(LevelError, message, payload, source)
}

// Debug appends a debug entry.
func (l *Log) Debug(source, message string, payload any) {
	l.Append(LevelDebug, message, payload, source)
}

// Nop discards everything reported to it.
var Nop Reporter = nopReporter{}

type nopReporter struct{}

func (nopReporter) Info(string, string, any)    {}
func (nopReporter) Success(string, string, any) {}
func (nopReporter) Warning(string, string, any) {}
func (nopReporter) Error(string, string, any)   {}
func (nopReporter) Debug(string, string, any)   {}
