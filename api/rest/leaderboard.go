package rest

import (
	"strconv"

	"github.com/framecraft/engagement/game/progression"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultBoardSize = 10

// LeaderboardHandler serves the organization leaderboard.
type LeaderboardHandler struct {
	svc    *progression.Service
	logger *zap.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(svc *progression.Service, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{svc: svc, logger: logger}
}

// Top returns the studio's top members by lifetime XP and the caller's rank.
// GET /api/v1/leaderboard?limit=10
func (h *LeaderboardHandler) Top(c *gin.Context) {
	limit := defaultBoardSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive number")
			return
		}
		limit = n
	}
	board, err := h.svc.Leaderboard(c.Request.Context(), identity(c), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, board)
}
