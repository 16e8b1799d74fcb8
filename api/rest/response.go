package rest

import (
	"net/http"

	"github.com/framecraft/engagement/game"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	auditRequestKey  = "audit.request"
	auditResponseKey = "audit.response"
	auditCodeKey     = "audit.code"
)

func ok(c *gin.Context, data interface{}) {
	c.Set(auditResponseKey, data)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func failWith(c *gin.Context, status int, code, msg string) {
	c.Set(auditCodeKey, code)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	failWith(c, http.StatusBadRequest, "invalid_request", msg)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k game.Kind) int {
	switch k {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindStateConflict:
		return http.StatusConflict
	case game.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case game.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err. Rule errors carry their own message; anything else is
// logged and hidden behind a generic one.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	if ge, isRule := game.AsError(err); isRule {
		failWith(c, StatusFor(ge.Kind), ge.Code, ge.Message)
		return
	}
	mw.RequestLogger(c, logger).Error("request failed",
		zap.String("route", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	failWith(c, http.StatusInternalServerError, "internal", "Something went wrong, please try again")
}

// bind decodes an optional JSON body into req and remembers it for the
// audit trail. An empty body leaves req at its zero value.
func bind(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			badRequest(c, "Request body is not valid JSON for this endpoint")
			return false
		}
	}
	c.Set(auditRequestKey, req)
	return true
}
