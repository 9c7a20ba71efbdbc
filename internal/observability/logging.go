// Package observability provides the ambient logging, metrics, and
// tracing stack shared by every other package: structured logs with
// secret redaction, Prometheus counters/histograms/gauges, and
// OpenTelemetry spans.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps log/slog with request correlation and redaction of
// provider keys/tokens that would otherwise end up in plain log output.
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures Logger.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string

	// Format is "json" or "text". JSON for production, text for local dev.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	AddSource bool

	// RedactPatterns are additional regexes appended to DefaultRedactPatterns.
	RedactPatterns []string
}

// ContextKey is the type for values this package stores on a context.
type ContextKey string

const (
	RequestIDKey      ContextKey = "request_id"
	SessionIDKey      ContextKey = "session_id"
	UserIDKey         ContextKey = "user_id"
	ConversationIDKey ContextKey = "conversation_id"
)

// DefaultRedactPatterns covers the provider credentials this project's
// adapters actually pass around.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	`(?i)(secret|key|token)[\s:=]+["\']?([a-fA-F0-9]{32,})["\']?`,
}

// NewLogger builds a Logger. A zero-value config defaults to
// stdout/info/json.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{Level: LogLevelFromString(config.Level), AddSource: config.AddSource}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(DefaultRedactPatterns, config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), config: config, redacts: redacts}
}

// WithContext returns a Logger that attaches request/session/user/
// conversation ids from ctx to every subsequent record.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := make([]any, 0, 8)
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		attrs = append(attrs, "user_id", v)
	}
	if v, ok := ctx.Value(ConversationIDKey).(string); ok && v != "" {
		attrs = append(attrs, "conversation_id", v)
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(attrs...), config: l.config, redacts: l.redacts}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }
func (l *Logger) Info(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelWarn, msg, args...) }
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	redactedArgs := make([]any, len(args))
	for i, arg := range args {
		redactedArgs[i] = l.redactValue(arg)
	}

	attrs := make([]any, 0, len(redactedArgs)+8)
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		attrs = append(attrs, "user_id", v)
	}
	if v, ok := ctx.Value(ConversationIDKey).(string); ok && v != "" {
		attrs = append(attrs, "conversation_id", v)
	}
	attrs = append(attrs, redactedArgs...)

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	case map[string]any:
		return l.redactMap(val)
	default:
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

var sensitiveKeys = map[string]bool{
	"password": true, "passwd": true, "secret": true, "token": true,
	"api_key": true, "apikey": true, "private_key": true, "authorization": true,
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		lowerKey := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if sensitiveKeys[lowerKey] {
			result[k] = "[REDACTED]"
		} else {
			result[k] = l.redactValue(v)
		}
	}
	return result
}

// WithFields returns a Logger with extra static fields on every record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), config: l.config, redacts: l.redacts}
}

// AddRequestID / AddSessionID / AddUserID / AddConversationID attach
// correlation ids to a context for later extraction by WithContext/log.
func AddRequestID(ctx context.Context, id string) context.Context { return context.WithValue(ctx, RequestIDKey, id) }
func AddSessionID(ctx context.Context, id string) context.Context { return context.WithValue(ctx, SessionIDKey, id) }
func AddUserID(ctx context.Context, id string) context.Context    { return context.WithValue(ctx, UserIDKey, id) }
func AddConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, id)
}

// LogLevelFromString converts a string to a slog.Level, defaulting to Info.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
