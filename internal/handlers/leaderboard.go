package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/services"
)

type LeaderboardHandler struct {
	log         *logger.Logger
	leaderboard services.LeaderboardService
}

func NewLeaderboardHandler(log *logger.Logger, leaderboard services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{
		log:         log.With("handler", "LeaderboardHandler"),
		leaderboard: leaderboard,
	}
}

// GET /api/leaderboard?course=&limit=
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	entries, err := h.leaderboard.Top(c.Request.Context(), c.Query("course"), limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"leaderboard": entries})
}
