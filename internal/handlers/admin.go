package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
)

type AdminHandler struct {
	log   *logger.Logger
	reset services.ResetService
	stats services.StatsService
}

func NewAdminHandler(log *logger.Logger, reset services.ResetService, stats services.StatsService) *AdminHandler {
	return &AdminHandler{
		log:   log.With("handler", "AdminHandler"),
		reset: reset,
		stats: stats,
	}
}

type resetRequest struct {
	ActorID  string `json:"actor_id" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
}

// POST /api/admin/reset
// Clears derived state (signals, awards, positions) for an (actor, course)
// pair. Raw events stay. Safe to repeat.
func (h *AdminHandler) ResetProgress(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, services.ValidationError("actor_id must be a uuid"))
		return
	}

	rd := requestdata.GetRequestData(c.Request.Context())
	result, err := h.reset.ResetProgress(c.Request.Context(), actorID, req.CourseID, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	view, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"stats": view})
}

// GET /api/admin/events?actor_id=&class_id=
// Raw event trail for one (actor, class), for support investigations: what a
// learner actually sent, independent of the derived signals.
func (h *AdminHandler) GetActorClassEvents(c *gin.Context) {
	actorID, err := uuid.Parse(c.Query("actor_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, services.ValidationError("actor_id must be a uuid"))
		return
	}
	events, err := h.stats.ActorClassEvents(c.Request.Context(), actorID, c.Query("class_id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"events": events})
}
