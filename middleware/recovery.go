package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into the generic internal error
// envelope. The panic value and stack go to the log only.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			RequestLogger(c, log).Error("panic recovered",
				zap.Any("panic", r),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			abort(c, http.StatusInternalServerError, "internal", "Something went wrong, please try again")
		}()
		c.Next()
	}
}
