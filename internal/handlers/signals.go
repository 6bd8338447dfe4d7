package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
)

type SignalHandler struct {
	log         *logger.Logger
	progression services.ProgressionService
}

func NewSignalHandler(log *logger.Logger, progression services.ProgressionService) *SignalHandler {
	return &SignalHandler{
		log:         log.With("handler", "SignalHandler"),
		progression: progression,
	}
}

// GET /api/signals/:courseId
// Per-step signal set for the caller, plus video positions, aggregate course
// progress and the current unlockable step index.
func (h *SignalHandler) GetCourseSignals(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	overview, err := h.progression.Overview(c.Request.Context(), nil, rd.UserID, c.Param("courseId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, overview)
}
