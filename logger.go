package inflight

import (
	"time"
)

// Logger is the structured logging interface the module emits through.
// Implement it directly or use one of the bundled adapters (zap, slog).
type Logger interface {
	// Debug logs detailed troubleshooting information.
	Debug(msg string, fields ...Field)

	// Info logs general operational messages.
	Info(msg string, fields ...Field)

	// Warn logs potentially harmful situations.
	Warn(msg string, fields ...Field)

	// Error logs error conditions that should be investigated.
	Error(msg string, fields ...Field)

	// Named returns a Logger scoped under the given subsystem name.
	Named(name string) Logger
}

// Field is a structured logging key-value pair. The Type hint lets
// adapters pick the backend's typed constructor instead of reflection.
type Field interface {
	Key() string
	Value() interface{}
	Type() FieldType
}

// FieldType identifies the concrete type carried by a Field.
type FieldType int

const (
	FieldTypeUnknown FieldType = iota
	FieldTypeString
	FieldTypeInt
	FieldTypeInt64
	FieldTypeDuration
	FieldTypeError
	FieldTypeAny
	// FieldTypeStack carries a rendered stack trace string.
	FieldTypeStack
)

type field struct {
	key       string
	value     interface{}
	fieldType FieldType
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.value }
func (f field) Type() FieldType    { return f.fieldType }

// String creates a string field.
func String(key, val string) Field {
	return field{key: key, value: val, fieldType: FieldTypeString}
}

// Int creates an integer field.
func Int(key string, val int) Field {
	return field{key: key, value: val, fieldType: FieldTypeInt}
}

// Int64 creates a 64-bit integer field.
func Int64(key string, val int64) Field {
	return field{key: key, value: val, fieldType: FieldTypeInt64}
}

// Duration creates a time.Duration field.
func Duration(key string, val time.Duration) Field {
	return field{key: key, value: val, fieldType: FieldTypeDuration}
}

// Error creates an error field under the key "error".
func Error(err error) Field {
	return field{key: "error", value: err, fieldType: FieldTypeError}
}

// Any creates a field holding an arbitrary value. Prefer the typed
// constructors where one exists.
func Any(key string, val interface{}) Field {
	return field{key: key, value: val, fieldType: FieldTypeAny}
}

// Stack creates a stack trace field under the key "stacktrace".
func Stack(val string) Field {
	return field{key: "stacktrace", value: val, fieldType: FieldTypeStack}
}

// NoOpLogger discards all log messages. It is the default logger, so the
// module stays silent unless a real backend is configured.
type NoOpLogger struct{}

func (n NoOpLogger) Debug(msg string, fields ...Field) {}
func (n NoOpLogger) Info(msg string, fields ...Field)  {}
func (n NoOpLogger) Warn(msg string, fields ...Field)  {}
func (n NoOpLogger) Error(msg string, fields ...Field) {}
func (n NoOpLogger) Named(name string) Logger          { return n }

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() Logger {
	return NoOpLogger{}
}
