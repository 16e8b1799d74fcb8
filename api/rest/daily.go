package rest

import (
	"github.com/framecraft/engagement/game/progression"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DailyHandler serves the daily login bonus.
type DailyHandler struct {
	svc    *progression.Service
	logger *zap.Logger
}

// NewDailyHandler creates a DailyHandler.
func NewDailyHandler(svc *progression.Service, logger *zap.Logger) *DailyHandler {
	return &DailyHandler{svc: svc, logger: logger}
}

// Status shows the current week and whether today is claimable.
// GET /api/v1/daily-bonus
func (h *DailyHandler) Status(c *gin.Context) {
	st, err := h.svc.DailyStatus(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, st)
}

// Claim collects today's bonus.
// POST /api/v1/daily-bonus/claim
func (h *DailyHandler) Claim(c *gin.Context) {
	res, err := h.svc.ClaimDaily(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}
