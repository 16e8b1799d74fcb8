package rest

import (
	"net/http"

	"github.com/framecraft/engagement/api/sse"
	"github.com/framecraft/engagement/api/ws"
	"github.com/framecraft/engagement/audit"
	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface needs. XP grants, stat
// counters and quest objective progress additionally require
// Security.ServiceKey. Stream, Socket,
// Scheduler, Audit and Notifier are optional.
type Deps struct {
	Service   *progression.Service
	Notifier  *progression.Notifier
	Stream    *sse.Handler
	Socket    *ws.Handler
	Cache     cache.Cache
	Scheduler *scheduler.Scheduler
	Audit     *audit.Service
	Security  config.SecurityConfig
	AdminKey  string
	Logger    *zap.Logger
}

// Mount registers /health, the user API under /api/v1 and the operator API
// under /api/admin.
func Mount(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "ok"}})
	})

	prog := NewProgressionHandler(d.Service, d.Notifier, d.Logger)
	quests := NewQuestHandler(d.Service, d.Logger)
	skills := NewSkillHandler(d.Service, d.Logger)
	daily := NewDailyHandler(d.Service, d.Logger)
	board := NewLeaderboardHandler(d.Service, d.Logger)
	admin := NewAdminHandler(d.Service, d.Cache, d.Scheduler, d.Audit, d.Security, d.Logger)
	audited := func(action string) gin.HandlerFunc { return Audited(d.Audit, action) }
	backend := mw.ServiceAuth(d.Security.ServiceKey)

	v1 := r.Group("/api/v1")
	v1.Use(mw.Auth(d.Security, d.Cache))
	{
		pg := v1.Group("/progression")
		pg.GET("", prog.Profile)
		pg.POST("/xp", backend, audited("xp.award"), prog.AwardXP)
		pg.POST("/activity", audited("activity.record"), prog.RecordActivity)
		pg.POST("/stats", backend, audited("stats.record"), prog.RecordStat)
		pg.POST("/freezes", audited("freeze.purchase"), prog.PurchaseFreeze)
		pg.POST("/prestige", audited("prestige"), prog.Prestige)
		pg.GET("/milestones", prog.Milestones)
		pg.GET("/recent", prog.Recent)

		qg := v1.Group("/quests")
		qg.GET("", quests.List)
		qg.POST("/:id/start", audited("quest.start"), quests.Start)
		qg.POST("/:id/progress", backend, audited("quest.progress"), quests.Progress)
		qg.POST("/:id/abandon", audited("quest.abandon"), quests.Abandon)
		qg.POST("/:id/retry", audited("quest.retry"), quests.Retry)

		sg := v1.Group("/skills")
		sg.GET("", skills.Tree)
		sg.POST("/reset", audited("skills.reset"), skills.Reset)
		sg.POST("/:id/unlock", audited("skills.unlock"), skills.Unlock)

		dg := v1.Group("/daily-bonus")
		dg.GET("", daily.Status)
		dg.POST("/claim", audited("daily.claim"), daily.Claim)

		v1.GET("/leaderboard", board.Top)
		if d.Stream != nil {
			v1.GET("/events", d.Stream.Serve)
		}
		if d.Socket != nil {
			v1.GET("/ws", d.Socket.Serve)
		}
	}

	ag := r.Group("/api/admin")
	ag.Use(mw.IPWhitelist(d.Security.AdminIPs), mw.AdminAuth(d.AdminKey))
	{
		ag.GET("/metrics", admin.Metrics)
		ag.POST("/leaderboard/refresh", admin.RefreshLeaderboard)
		ag.GET("/scheduler", admin.ListSchedulerTasks)
		ag.POST("/scheduler/:name/run", admin.RunSchedulerTask)
		ag.GET("/audit", admin.Audit)
		ag.POST("/tokens/revoke", admin.RevokeToken)
		ag.POST("/activity/backfill", Audited(d.Audit, "activity.backfill"), admin.BackfillActivity)
	}
}
