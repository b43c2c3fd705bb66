package logging

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// SlogLogger adapts a *slog.Logger to Logger so the library can log through
// an application's structured handler
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewSlogLogger wraps l. A nil l uses slog.Default(). All levels are passed
// through until SetLevel raises the minimum; the handler applies its own
// level as well.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelDebug)
	return &SlogLogger{logger: l, level: lv}
}

// slogLevelFatal sorts above slog.LevelError
const slogLevelFatal = slog.LevelError + 4

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slogLevelFatal
	}
}

func attrs(err error, fields []Fields) []slog.Attr {
	all := merge(nil, fields...)
	out := make([]slog.Attr, 0, len(all)+1)
	if err != nil {
		out = append(out, slog.Any("err", err))
	}
	for _, k := range slices.Sorted(maps.Keys(all)) {
		out = append(out, slog.Any(k, all[k]))
	}
	return out
}

func (s *SlogLogger) log(level slog.Level, err error, msg string, fields []Fields) {
	if level < s.level.Level() {
		return
	}
	s.logger.LogAttrs(context.Background(), level, msg, attrs(err, fields)...)
}

func (s *SlogLogger) Debug(msg string, fields ...Fields) {
	s.log(slog.LevelDebug, nil, msg, fields)
}

func (s *SlogLogger) Info(msg string, fields ...Fields) {
	s.log(slog.LevelInfo, nil, msg, fields)
}

func (s *SlogLogger) Warn(msg string, fields ...Fields) {
	s.log(slog.LevelWarn, nil, msg, fields)
}

func (s *SlogLogger) Error(err error, msg string, fields ...Fields) {
	s.log(slog.LevelError, err, msg, fields)
}

// Fatal logs above error level and exits the process
func (s *SlogLogger) Fatal(err error, msg string, fields ...Fields) {
	s.log(slogLevelFatal, err, msg, fields)
	exit(1)
}

func (s *SlogLogger) WithFields(fields Fields) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range attrs(nil, []Fields{fields}) {
		args = append(args, a)
	}
	return &SlogLogger{logger: s.logger.With(args...), level: s.level}
}

func (s *SlogLogger) WithContext(ctx context.Context) Logger {
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return s.WithFields(fields)
	}
	return s
}

func (s *SlogLogger) SetLevel(level Level) {
	s.level.Set(toSlogLevel(level))
}
