package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldUserID is the field name for user ID.
	LogFieldUserID = "user_id"
	// LogFieldRole is the field name for the caller's role.
	LogFieldRole = "role"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldStatus is the field name for the HTTP status.
	LogFieldStatus = "status"
)

// NewLogger builds the process logger. format is "json" or "text"; level is
// one of debug, info, warn, error and defaults to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// RequestContext carries the per-request logging state. The user is filled
// in after authentication, so it is guarded by a mutex.
type RequestContext struct {
	RequestID string
	StartTime time.Time
	Logger    *slog.Logger

	mu     sync.Mutex
	userID int64
	role   string
}

// NewRequestContext creates a request context; an empty requestID gets a
// fresh uuid.
func NewRequestContext(logger *slog.Logger, requestID string) *RequestContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &RequestContext{RequestID: requestID, StartTime: time.Now(), Logger: logger}
}

// SetUser records the authenticated caller.
func (r *RequestContext) SetUser(userID int64, role string) {
	r.mu.Lock()
	r.userID, r.role = userID, role
	r.mu.Unlock()
}

// WithFields returns a logger carrying the request attributes plus attrs.
func (r *RequestContext) WithFields(attrs ...slog.Attr) *slog.Logger {
	all := r.baseAttrs(attrs...)
	args := make([]any, 0, len(all))
	for _, a := range all {
		args = append(args, a)
	}
	return r.Logger.With(args...)
}

func (r *RequestContext) Info(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, r.baseAttrs(attrs...)...)
}

func (r *RequestContext) Warn(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, r.baseAttrs(attrs...)...)
}

// Error logs msg with err attached.
func (r *RequestContext) Error(msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	r.Logger.LogAttrs(context.Background(), slog.LevelError, msg, r.baseAttrs(attrs...)...)
}

// Duration returns the elapsed time since the request started.
func (r *RequestContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

func (r *RequestContext) baseAttrs(extra ...slog.Attr) []slog.Attr {
	r.mu.Lock()
	userID, role := r.userID, r.role
	r.mu.Unlock()

	out := make([]slog.Attr, 0, 3+len(extra))
	out = append(out, slog.String(LogFieldRequestID, r.RequestID))
	if role != "" {
		out = append(out, slog.Int64(LogFieldUserID, userID), slog.String(LogFieldRole, role))
	}
	return append(out, extra...)
}

type ctxKey struct{}

// WithRequestContext adds the request context to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, reqCtx)
}

// FromContext extracts the request context from the context.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	reqCtx, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return reqCtx, ok
}

// Logger returns a request-scoped logger when ctx carries one, else fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if rc, ok := FromContext(ctx); ok {
		return rc.WithFields()
	}
	return fallback
}
