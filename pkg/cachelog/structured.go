package cachelog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"runtime"
	"strings"
	"time"
)

// StructuredLogger emits one JSON object per line, with caller info and a
// stack trace attached to Error-and-above entries.
type StructuredLogger struct {
	level  Level
	writer io.Writer
	fields map[string]interface{}
}

// LogEntry is the JSON shape written by StructuredLogger.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    *CallerInfo            `json:"caller,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// CallerInfo identifies the call site that produced a log entry.
type CallerInfo struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// NewStructuredLogger creates a JSON logger writing to stdout.
func NewStructuredLogger(level Level) Logger {
	return &StructuredLogger{level: level, writer: os.Stdout, fields: make(map[string]interface{})}
}

// NewStructuredLoggerWithWriter creates a JSON logger writing to an
// arbitrary writer.
func NewStructuredLoggerWithWriter(level Level, writer io.Writer) Logger {
	return &StructuredLogger{level: level, writer: writer, fields: make(map[string]interface{})}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &StructuredLogger{level: l.level, writer: l.writer, fields: fields}
}

func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	n := l.clone()
	n.fields[key] = value
	return n
}

func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	n := l.clone()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

func (l *StructuredLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithContext attaches a trace ID when one is present on the context under
// the traceIDContextKey; this module has no tracing integration of its own,
// so callers that carry one (e.g. from an upstream gRPC/HTTP layer) are the
// only source.
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if traceID, ok := ctx.Value(traceIDContextKey{}).(string); ok && traceID != "" {
		return l.WithField("trace_id", traceID)
	}
	return l
}

type traceIDContextKey struct{}

// WithTraceID returns a context carrying a trace ID that WithContext will
// pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

func (l *StructuredLogger) Debug(message string) { l.log(DebugLevel, message, nil) }
func (l *StructuredLogger) Info(message string)  { l.log(InfoLevel, message, nil) }
func (l *StructuredLogger) Warn(message string)  { l.log(WarnLevel, message, nil) }
func (l *StructuredLogger) Error(message string, err error) {
	l.log(ErrorLevel, message, err)
}
func (l *StructuredLogger) Fatal(message string, err error) {
	l.log(FatalLevel, message, err)
	os.Exit(1)
}
func (l *StructuredLogger) Panic(message string, err error) {
	l.log(PanicLevel, message, err)
	panic(message)
}

func (l *StructuredLogger) log(level Level, message string, err error) {
	if level < l.level {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     strings.ToLower(level.String()),
		Message:   message,
		Fields:    make(map[string]interface{}, len(l.fields)),
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if caller := getCaller(3); caller != nil {
		entry.Caller = caller
	}
	if level >= ErrorLevel {
		entry.Stack = getStackTrace()
	}
	if traceID, ok := entry.Fields["trace_id"].(string); ok {
		entry.TraceID = traceID
		delete(entry.Fields, "trace_id")
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	data, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		_, _ = l.writer.Write([]byte(entry.Message + "\n"))
		return
	}
	_, _ = l.writer.Write(data)
	_, _ = l.writer.Write([]byte("\n"))
}

func getCaller(skip int) *CallerInfo {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}
	var funcName string
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcName = fn.Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}
	}
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	return &CallerInfo{File: file, Line: line, Function: funcName}
}

func getStackTrace() string {
	buf := make([]byte, 8*1024)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
