package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
)

// inbound trace ids are echoed into logs and the audit table
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type traceCtxKey struct{}

// TraceID tags each request with a trace id: the caller's X-Trace-ID when
// it is well formed, a fresh UUID otherwise. The id is echoed in the
// response header and copied into the request context.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if !traceIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), id))
		c.Next()
	}
}

// GetTraceID returns the request's trace id, or "".
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// WithTraceID returns ctx carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, id)
}

// TraceIDFrom extracts the trace id placed by WithTraceID.
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceCtxKey{}).(string)
	return id
}
