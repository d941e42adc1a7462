package inflight

import (
	"log/slog"
	"time"
)

// SlogAdapter bridges the standard library's slog.Logger to the Logger
// interface for callers that do not carry zap.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps an existing slog.Logger.
func NewSlogAdapter(logger *slog.Logger) (*SlogAdapter, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &SlogAdapter{logger: logger}, nil
}

// Debug logs at debug level.
func (s *SlogAdapter) Debug(msg string, fields ...Field) {
	s.logger.Debug(msg, s.convertFields(fields)...)
}

// Info logs at info level.
func (s *SlogAdapter) Info(msg string, fields ...Field) {
	s.logger.Info(msg, s.convertFields(fields)...)
}

// Warn logs at warning level.
func (s *SlogAdapter) Warn(msg string, fields ...Field) {
	s.logger.Warn(msg, s.convertFields(fields)...)
}

// Error logs at error level.
func (s *SlogAdapter) Error(msg string, fields ...Field) {
	s.logger.Error(msg, s.convertFields(fields)...)
}

// Named scopes the logger under name. slog has no naming concept, so the
// name rides along as a persistent attribute.
func (s *SlogAdapter) Named(name string) Logger {
	return &SlogAdapter{logger: s.logger.With("component", name)}
}

func (s *SlogAdapter) convertFields(fields []Field) []any {
	if len(fields) == 0 {
		return nil
	}

	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}

		switch f.Type() {
		case FieldTypeString:
			if v, ok := f.Value().(string); ok {
				attrs = append(attrs, slog.String(f.Key(), v))
			}
		case FieldTypeInt:
			if v, ok := f.Value().(int); ok {
				attrs = append(attrs, slog.Int(f.Key(), v))
			}
		case FieldTypeInt64:
			if v, ok := f.Value().(int64); ok {
				attrs = append(attrs, slog.Int64(f.Key(), v))
			}
		case FieldTypeDuration:
			if v, ok := f.Value().(time.Duration); ok {
				attrs = append(attrs, slog.Duration(f.Key(), v))
			}
		case FieldTypeError:
			if err, ok := f.Value().(error); ok && err != nil {
				attrs = append(attrs, slog.String(f.Key(), err.Error()))
			}
		case FieldTypeStack:
			if v, ok := f.Value().(string); ok {
				attrs = append(attrs, slog.String(f.Key(), v))
			}
		default:
			attrs = append(attrs, slog.Any(f.Key(), f.Value()))
		}
	}
	return attrs
}
