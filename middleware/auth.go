package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey        = "user_id"
	OrgIDKey         = "org_id"
	AdminKeyHeader   = "X-Admin-Key"
	ServiceKeyHeader = "X-Service-Key"
)

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}

func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// EventSource cannot set headers.
	return c.Query("token")
}

// Auth validates the bearer JWT (header, or ?token= for streams) and
// rejects revoked token ids.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearer(ctx)
		if tokenStr == "" {
			abort(ctx, http.StatusUnauthorized, "missing_token", "Sign in to continue")
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret, sec.JWTIssuer)
		if err != nil {
			abort(ctx, http.StatusUnauthorized, "invalid_token", "Your session is invalid, sign in again")
			return
		}

		if claims.ID != "" && c != nil {
			cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			defer cancel()
			revoked, err := c.Exists(cacheCtx, RevokedKey(claims.ID))
			if err != nil || revoked {
				abort(ctx, http.StatusUnauthorized, "session_expired", "Your session has ended, sign in again")
				return
			}
		}

		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(OrgIDKey, claims.OrgID)
		ctx.Next()
	}
}

// GetIdentity returns the authenticated organization and user ids.
func GetIdentity(c *gin.Context) (orgID, userID string) {
	return c.GetString(OrgIDKey), c.GetString(UserIDKey)
}

// AdminAuth guards operator routes with a shared key. An empty key
// disables the admin surface.
func AdminAuth(key string) gin.HandlerFunc {
	return sharedKey(AdminKeyHeader, key, "admin", "Admin access is not configured")
}

// ServiceAuth guards routes that report facts only the studio backend can
// vouch for (XP grants, stat counters, quest objectives). The caller still
// sends the member's bearer token; Auth must run first. An empty key
// disables those routes.
func ServiceAuth(key string) gin.HandlerFunc {
	return sharedKey(ServiceKeyHeader, key, "service", "This action can only be reported by the studio backend")
}

func sharedKey(header, key, scope, disabledMsg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			abort(c, http.StatusForbidden, scope+"_disabled", disabledMsg)
			return
		}
		got := c.GetHeader(header)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abort(c, http.StatusUnauthorized, "invalid_"+scope+"_key", "Invalid "+scope+" key")
			return
		}
		c.Next()
	}
}
