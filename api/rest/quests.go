package rest

import (
	"github.com/framecraft/engagement/game/progression"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QuestHandler serves the quest log.
type QuestHandler struct {
	svc    *progression.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(svc *progression.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{svc: svc, logger: logger}
}

// List returns every quest with its status for the user.
// GET /api/v1/quests
func (h *QuestHandler) List(c *gin.Context) {
	views, err := h.svc.ListQuests(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, views)
}

func (h *QuestHandler) respond(c *gin.Context, up *progression.QuestUpdate, err error) {
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, up)
}

// Start begins a quest.
// POST /api/v1/quests/:id/start
func (h *QuestHandler) Start(c *gin.Context) {
	up, err := h.svc.StartQuest(c.Request.Context(), identity(c), c.Param("id"))
	h.respond(c, up, err)
}

type progressRequest struct {
	Objective string `json:"objective"`
	Delta     int64  `json:"delta"`
}

// Progress advances one objective of the active quest.
// POST /api/v1/quests/:id/progress
func (h *QuestHandler) Progress(c *gin.Context) {
	var req progressRequest
	if !bind(c, &req) {
		return
	}
	if req.Objective == "" {
		badRequest(c, "Name the objective to advance")
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	up, err := h.svc.ProgressQuest(c.Request.Context(), identity(c), c.Param("id"), req.Objective, req.Delta)
	h.respond(c, up, err)
}

// Abandon gives up the active quest.
// POST /api/v1/quests/:id/abandon
func (h *QuestHandler) Abandon(c *gin.Context) {
	up, err := h.svc.AbandonQuest(c.Request.Context(), identity(c), c.Param("id"))
	h.respond(c, up, err)
}

// Retry makes an abandoned quest available again.
// POST /api/v1/quests/:id/retry
func (h *QuestHandler) Retry(c *gin.Context) {
	up, err := h.svc.RetryQuest(c.Request.Context(), identity(c), c.Param("id"))
	h.respond(c, up, err)
}
