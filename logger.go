package tiercache

import "maps"

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around logging stack.
// If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// With returns a Logger that adds base to every call. Call fields win on
// conflicting keys.
func With(l Logger, base Fields) Logger {
	if _, ok := l.(NopLogger); ok || len(base) == 0 {
		return l
	}
	return withLogger{l: l, base: base}
}

type withLogger struct {
	l    Logger
	base Fields
}

func (w withLogger) merge(f Fields) Fields {
	out := make(Fields, len(w.base)+len(f))
	maps.Copy(out, w.base)
	maps.Copy(out, f)
	return out
}

func (w withLogger) Debug(msg string, f Fields) { w.l.Debug(msg, w.merge(f)) }
func (w withLogger) Info(msg string, f Fields)  { w.l.Info(msg, w.merge(f)) }
func (w withLogger) Warn(msg string, f Fields)  { w.l.Warn(msg, w.merge(f)) }
func (w withLogger) Error(msg string, f Fields) { w.l.Error(msg, w.merge(f)) }
