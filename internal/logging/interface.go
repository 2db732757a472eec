package logging

import (
	"errors"
	"fmt"
	"time"
)

// LogRecord is a single log event as produced by the logging pipeline.
// Records are treated as immutable once handed to an Emitter.
type LogRecord struct {
	Timestamp       time.Time
	Level           Level
	MessageTemplate string
	Properties      map[string]PropertyValue
	Exception       *ExceptionInfo
}

// ExceptionInfo is the structured form of an error attached to a record.
type ExceptionInfo struct {
	Message    string
	Type       string
	StackTrace string
	Inner      *ExceptionInfo
}

// ExceptionFromError walks the Unwrap chain of err. It returns nil for a nil error.
func ExceptionFromError(err error) *ExceptionInfo {
	if err == nil {
		return nil
	}
	info := &ExceptionInfo{
		Message: err.Error(),
		Type:    fmt.Sprintf("%T", err),
	}
	if st, ok := err.(interface{ StackTrace() string }); ok {
		info.StackTrace = st.StackTrace()
	}
	info.Inner = ExceptionFromError(errors.Unwrap(err))
	return info
}

// RenderMessage renders the record's template against its own properties.
func (r *LogRecord) RenderMessage(fp FormatProvider) string {
	return Render(r.MessageTemplate, r.Properties, fp)
}

// Emitter accepts records one at a time and persists them asynchronously.
type Emitter interface {
	Emit(record *LogRecord)
}

// FormatProvider customizes how scalar values are rendered into messages.
// Returning false falls back to the default rendering.
type FormatProvider interface {
	FormatValue(value any, format string) (string, bool)
}
