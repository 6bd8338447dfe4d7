package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/services"
)

type CourseHandler struct {
	log     *logger.Logger
	catalog services.CatalogService
}

func NewCourseHandler(log *logger.Logger, catalog services.CatalogService) *CourseHandler {
	return &CourseHandler{
		log:     log.With("handler", "CourseHandler"),
		catalog: catalog,
	}
}

// GET /api/courses/:courseId
// Step list with media flags. Quiz answer keys stay server-side.
func (h *CourseHandler) GetCourse(c *gin.Context) {
	course, steps, err := h.catalog.GetCourse(c.Request.Context(), nil, c.Param("courseId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"course": course, "steps": steps})
}
