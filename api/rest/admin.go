package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/framecraft/engagement/audit"
	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler handles operator endpoints. Routes must be protected by
// middleware.AdminAuth.
type AdminHandler struct {
	svc    *progression.Service
	cache  cache.Cache
	sched  *scheduler.Scheduler
	audit  *audit.Service
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. sched and auditSvc may be nil.
func NewAdminHandler(
	svc *progression.Service,
	c cache.Cache,
	sched *scheduler.Scheduler,
	auditSvc *audit.Service,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svc: svc, cache: c, sched: sched, audit: auditSvc, sec: sec, logger: logger}
}

// Metrics returns event counters and background task health.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	counts, err := h.cache.HGetAll(c.Request.Context(), progression.MetricsKey)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	events := make(map[string]int64, len(counts))
	for name, raw := range counts {
		n, _ := strconv.ParseInt(raw, 10, 64)
		events[name] = n
	}
	out := gin.H{"events": events}
	if h.sched != nil {
		out["scheduler_tasks"] = h.sched.ListTickers()
	}
	if h.audit != nil {
		out["audit_dropped"] = h.audit.Dropped()
	}
	ok(c, out)
}

// RefreshLeaderboard rebuilds every organization's ranking from the database.
// POST /api/admin/leaderboard/refresh
func (h *AdminHandler) RefreshLeaderboard(c *gin.Context) {
	n, err := h.svc.RebuildLeaderboard(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.logger.Info("admin rebuilt leaderboards", zap.Int("profiles", n))
	ok(c, gin.H{"profiles": n})
}

// ListSchedulerTasks returns every background task with its run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	if h.sched == nil {
		ok(c, []scheduler.TaskInfo{})
		return
	}
	ok(c, h.sched.List())
}

// RunSchedulerTask runs one background task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	if h.sched == nil {
		failWith(c, http.StatusNotFound, "task_not_found", "No such task")
		return
	}
	info, err := h.sched.RunNow(c.Param("name"))
	if errors.Is(err, scheduler.ErrUnknownTask) {
		failWith(c, http.StatusNotFound, "task_not_found", "No such task")
		return
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, info)
}

// Audit lists recent audit rows. Filters: org_id, user_id, action, limit.
// GET /api/admin/audit
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		ok(c, []interface{}{})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.audit.Recent(c.Request.Context(), audit.Query{
		OrgID:      c.Query("org_id"),
		UserID:     c.Query("user_id"),
		Action:     c.Query("action"),
		FailedOnly: c.Query("failed") == "true",
		Limit:      limit,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, rows)
}

type backfillRequest struct {
	OrgID  string    `json:"org_id"`
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// BackfillActivity replays a past login or delivery imported from the
// studio backend. Future times and days before the streak's last activity
// are rejected.
// POST /api/admin/activity/backfill
func (h *AdminHandler) BackfillActivity(c *gin.Context) {
	var req backfillRequest
	if !bind(c, &req) {
		return
	}
	if req.OrgID == "" || req.UserID == "" {
		badRequest(c, "Provide org_id and user_id")
		return
	}
	// audit the member the activity belongs to
	c.Set(mw.OrgIDKey, req.OrgID)
	c.Set(mw.UserIDKey, req.UserID)
	id := progression.Identity{OrgID: req.OrgID, UserID: req.UserID}
	res, err := h.svc.BackfillActivity(c.Request.Context(), id, req.Kind, req.At)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// RevokeToken ends a session issued by the account service.
// POST /api/admin/tokens/revoke
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		badRequest(c, "Provide the token to revoke")
		return
	}
	claims, err := mw.ParseToken(req.Token, h.sec.JWTSecret, h.sec.JWTIssuer)
	if err != nil {
		badRequest(c, "Token is not valid")
		return
	}
	if err := mw.RevokeToken(c.Request.Context(), h.cache, claims); err != nil {
		fail(c, h.logger, err)
		return
	}
	h.logger.Info("admin revoked token",
		zap.String("org_id", claims.OrgID), zap.String("user_id", claims.UserID))
	ok(c, gin.H{"revoked": claims.ID})
}
