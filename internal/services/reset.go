package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

type ResetResult struct {
	ActorID  uuid.UUID `json:"actor_id"`
	CourseID string    `json:"course_id"`
	ResetAt  time.Time `json:"reset_at"`
}

// ResetService clears a learner's derived state for a course: signals, awards
// and video positions. Raw events are preserved; the reset itself is recorded
// as an ADMIN_RESET event so the operation stays auditable, and running it
// again is a no-op with the same outcome.
type ResetService interface {
	ResetProgress(ctx context.Context, actorID uuid.UUID, courseID string, requestedBy uuid.UUID) (*ResetResult, error)
}

type resetService struct {
	db        *gorm.DB
	log       *logger.Logger
	catalog   CatalogService
	events    repos.EventRepo
	signals   repos.SignalRepo
	awards    repos.AwardRepo
	positions repos.VideoPositionRepo
}

func NewResetService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog CatalogService,
	events repos.EventRepo,
	signals repos.SignalRepo,
	awards repos.AwardRepo,
	positions repos.VideoPositionRepo,
) ResetService {
	return &resetService{
		db:        db,
		log:       baseLog.With("service", "ResetService"),
		catalog:   catalog,
		events:    events,
		signals:   signals,
		awards:    awards,
		positions: positions,
	}
}

func (s *resetService) ResetProgress(ctx context.Context, actorID uuid.UUID, courseID string, requestedBy uuid.UUID) (*ResetResult, error) {
	if actorID == uuid.Nil {
		return nil, ValidationError("actor_id is required")
	}
	if _, _, err := s.catalog.GetCourse(ctx, nil, courseID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.signals.DeleteByActorAndCourseID(ctx, tx, actorID, courseID); err != nil {
			return err
		}
		if err := s.awards.DeleteByActorAndCourseID(ctx, tx, actorID, courseID); err != nil {
			return err
		}
		if err := s.positions.DeleteByActorAndCourseID(ctx, tx, actorID, courseID); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]any{"requested_by": requestedBy.String()})
		_, err := s.events.Create(ctx, tx, []*types.Event{{
			ID:        uuid.New(),
			ActorID:   actorID,
			CourseID:  courseID,
			ClassID:   "",
			Type:      types.EventAdminReset,
			Payload:   datatypes.JSON(payload),
			CreatedAt: now,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Progress reset", "actor_id", actorID, "course_id", courseID, "requested_by", requestedBy)
	return &ResetResult{ActorID: actorID, CourseID: courseID, ResetAt: now}, nil
}
