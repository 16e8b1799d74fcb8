package rest

import (
	"time"

	"github.com/framecraft/engagement/audit"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/gin-gonic/gin"
)

// Audited records the mutation named action once the handler has run. A
// nil service disables the trail.
func Audited(svc *audit.Service, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		orgID, userID := mw.GetIdentity(c)
		req, _ := c.Get(auditRequestKey)
		resp, _ := c.Get(auditResponseKey)
		entry := audit.Entry{
			TraceID:    mw.GetTraceID(c),
			OrgID:      orgID,
			UserID:     userID,
			Action:     action,
			Request:    req,
			Response:   resp,
			Status:     c.Writer.Status(),
			Code:       c.GetString(auditCodeKey),
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if p := c.Param("id"); p != "" && entry.Request == nil {
			entry.Request = gin.H{"id": p}
		}
		svc.Log(entry)
	}
}
