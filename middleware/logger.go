package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger returns base annotated with the request's trace id and,
// once Auth has run, the caller's identity.
func RequestLogger(c *gin.Context, base *zap.Logger) *zap.Logger {
	fields := []zap.Field{zap.String("trace_id", GetTraceID(c))}
	if orgID, userID := GetIdentity(c); userID != "" {
		fields = append(fields, zap.String("org_id", orgID), zap.String("user_id", userID))
	}
	return base.With(fields...)
}

// Logger writes one line per request. 4xx responses log at warn and 5xx
// at error.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		if status >= 500 {
			level = zapcore.ErrorLevel
		} else if status >= 400 {
			level = zapcore.WarnLevel
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		if ce := RequestLogger(c, log).Check(level, "http"); ce != nil {
			ce.Write(fields...)
		}
	}
}
