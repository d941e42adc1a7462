package inflight

import (
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrNilLogger is returned when a nil logger is handed to an adapter.
var ErrNilLogger = errors.New("logger cannot be nil")

// ZapAdapter bridges a zap.Logger to the Logger interface so existing zap
// setups plug in without any glue code at call sites.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter wraps an existing zap.Logger.
func NewZapAdapter(logger *zap.Logger) (*ZapAdapter, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &ZapAdapter{logger: logger}, nil
}

// Debug logs at debug level.
func (z *ZapAdapter) Debug(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(z.convertFields(fields)...)
	}
}

// Info logs at info level.
func (z *ZapAdapter) Info(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(z.convertFields(fields)...)
	}
}

// Warn logs at warning level.
func (z *ZapAdapter) Warn(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(z.convertFields(fields)...)
	}
}

// Error logs at error level.
func (z *ZapAdapter) Error(msg string, fields ...Field) {
	if ce := z.logger.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(z.convertFields(fields)...)
	}
}

// Named returns a logger scoped under name.
func (z *ZapAdapter) Named(name string) Logger {
	return &ZapAdapter{logger: z.logger.Named(name)}
}

// convertFields maps generic Fields onto zap's typed constructors to keep
// zap's zero-allocation encoding on the common paths.
func (z *ZapAdapter) convertFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}

		switch f.Type() {
		case FieldTypeString:
			if v, ok := f.Value().(string); ok {
				zapFields = append(zapFields, zap.String(f.Key(), v))
			}
		case FieldTypeInt:
			if v, ok := f.Value().(int); ok {
				zapFields = append(zapFields, zap.Int(f.Key(), v))
			}
		case FieldTypeInt64:
			if v, ok := f.Value().(int64); ok {
				zapFields = append(zapFields, zap.Int64(f.Key(), v))
			}
		case FieldTypeDuration:
			if v, ok := f.Value().(time.Duration); ok {
				zapFields = append(zapFields, zap.Duration(f.Key(), v))
			}
		case FieldTypeError:
			if err, ok := f.Value().(error); ok && err != nil {
				zapFields = append(zapFields, zap.Error(err))
			}
		case FieldTypeStack:
			if v, ok := f.Value().(string); ok {
				zapFields = append(zapFields, zap.String(f.Key(), v))
			}
		default:
			zapFields = append(zapFields, zap.Any(f.Key(), f.Value()))
		}
	}
	return zapFields
}

// captureStack renders the current goroutine's stack for panic reports.
func captureStack() string {
	return string(debug.Stack())
}
