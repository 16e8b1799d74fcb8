package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler streams a user's celebrations (level-ups, milestones, quest
// completions...) as server-sent events. It expects middleware.Auth to have
// run, which accepts ?token= since EventSource cannot send headers.
type Handler struct {
	pubsub    cache.PubSub
	origins   map[string]bool
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a Handler. An empty origin list allows every origin.
func NewHandler(pubsub cache.PubSub, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{pubsub: pubsub, origins: origins, keepalive: defaultKeepalive, logger: logger}
}

// WithKeepalive overrides the comment heartbeat interval.
func (h *Handler) WithKeepalive(d time.Duration) *Handler {
	if d > 0 {
		h.keepalive = d
	}
	return h
}

// Serve handles GET /api/v1/events?token=<jwt>.
func (h *Handler) Serve(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" && len(h.origins) > 0 {
		if !h.origins[origin] {
			c.AbortWithStatusJSON(http.StatusForbidden,
				gin.H{"success": false, "error": "Origin not allowed", "code": "origin_denied"})
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
	}
	orgID, userID := mw.GetIdentity(c)

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	sub, err := h.pubsub.Subscribe(subCtx, progression.EventChannel(orgID, userID))
	if err != nil {
		h.logger.Error("sse subscribe failed",
			zap.String("org_id", orgID), zap.String("user_id", userID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"success": false, "error": "Live updates are unavailable right now", "code": "internal"})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"user_id\":%q}\n\n", userID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case payload, open := <-sub.C:
			if !open {
				return
			}
			var ev hook.Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				h.logger.Warn("sse dropped malformed event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
