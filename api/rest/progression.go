package rest

import (
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func identity(c *gin.Context) progression.Identity {
	orgID, userID := mw.GetIdentity(c)
	return progression.Identity{OrgID: orgID, UserID: userID}
}

// ProgressionHandler serves XP, activity, stats, freezes, prestige and
// milestones for the signed-in user.
type ProgressionHandler struct {
	svc      *progression.Service
	notifier *progression.Notifier
	logger   *zap.Logger
}

// NewProgressionHandler creates a ProgressionHandler. notifier may be nil.
func NewProgressionHandler(svc *progression.Service, n *progression.Notifier, logger *zap.Logger) *ProgressionHandler {
	return &ProgressionHandler{svc: svc, notifier: n, logger: logger}
}

// Profile returns level progress, streaks, freezes, points and prestige.
// GET /api/v1/progression
func (h *ProgressionHandler) Profile(c *gin.Context) {
	v, err := h.svc.GetProfile(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, v)
}

type awardRequest struct {
	Amount int64  `json:"amount"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// AwardXP credits XP.
// POST /api/v1/progression/xp
func (h *ProgressionHandler) AwardXP(c *gin.Context) {
	var req awardRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.svc.AwardXP(c.Request.Context(), identity(c), req.Amount, req.Source, req.Reason)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, a)
}

type activityRequest struct {
	Kind string `json:"kind"`
}

// RecordActivity advances the login or delivery streak for today.
// POST /api/v1/progression/activity
func (h *ProgressionHandler) RecordActivity(c *gin.Context) {
	var req activityRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.RecordActivity(c.Request.Context(), identity(c), req.Kind)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

type statRequest struct {
	Category string `json:"category"`
	Delta    int64  `json:"delta"`
}

// RecordStat bumps a business counter, awarding milestones and advancing
// the active quest.
// POST /api/v1/progression/stats
func (h *ProgressionHandler) RecordStat(c *gin.Context) {
	var req statRequest
	if !bind(c, &req) {
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	res, err := h.svc.RecordStat(c.Request.Context(), identity(c), req.Category, req.Delta)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// PurchaseFreeze buys one streak freeze with XP.
// POST /api/v1/progression/freezes
func (h *ProgressionHandler) PurchaseFreeze(c *gin.Context) {
	res, err := h.svc.PurchaseFreeze(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// Prestige resets the cycle at max level for a permanent multiplier.
// POST /api/v1/progression/prestige
func (h *ProgressionHandler) Prestige(c *gin.Context) {
	res, err := h.svc.Prestige(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// Milestones lists every milestone with the user's progress toward it.
// GET /api/v1/progression/milestones
func (h *ProgressionHandler) Milestones(c *gin.Context) {
	list, err := h.svc.ListMilestones(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, list)
}

// Recent returns the latest celebrations, newest first.
// GET /api/v1/progression/recent
func (h *ProgressionHandler) Recent(c *gin.Context) {
	id := identity(c)
	if h.notifier == nil {
		ok(c, []interface{}{})
		return
	}
	events, err := h.notifier.Recent(c.Request.Context(), id.OrgID, id.UserID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, events)
}
