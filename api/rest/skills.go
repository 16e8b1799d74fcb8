package rest

import (
	"github.com/framecraft/engagement/game/progression"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SkillHandler serves the skill trees.
type SkillHandler struct {
	svc    *progression.Service
	logger *zap.Logger
}

// NewSkillHandler creates a SkillHandler.
func NewSkillHandler(svc *progression.Service, logger *zap.Logger) *SkillHandler {
	return &SkillHandler{svc: svc, logger: logger}
}

// Tree returns every tree with per-skill unlock state.
// GET /api/v1/skills
func (h *SkillHandler) Tree(c *gin.Context) {
	v, err := h.svc.SkillTree(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, v)
}

// Unlock spends points on one skill.
// POST /api/v1/skills/:id/unlock
func (h *SkillHandler) Unlock(c *gin.Context) {
	res, err := h.svc.UnlockSkill(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// Reset refunds every spent point.
// POST /api/v1/skills/reset
func (h *SkillHandler) Reset(c *gin.Context) {
	res, err := h.svc.ResetSkills(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}
