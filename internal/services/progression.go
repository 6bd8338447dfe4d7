package services

import (
	"context"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

type StepState struct {
	ClassID        string `json:"class_id"`
	Idx            int    `json:"idx"`
	Title          string `json:"title"`
	HasVideo       bool   `json:"has_video"`
	HasQuiz        bool   `json:"has_quiz"`
	VideoCompleted bool   `json:"video_completed"`
	QuizAttempted  bool   `json:"quiz_attempted"`
	QuizPassed     bool   `json:"quiz_passed"`
	StepCompleted  bool   `json:"step_completed"`
	Accessible     bool   `json:"accessible"`
}

type CourseProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

type VideoPositionView struct {
	PositionSec float64 `json:"position_sec"`
	DurationSec float64 `json:"duration_sec"`
}

type ProgressOverview struct {
	CourseID       string                       `json:"course_id"`
	Steps          []StepState                  `json:"steps"`
	CanAccessStep  int                          `json:"can_access_step"`
	CourseProgress CourseProgress               `json:"course_progress"`
	VideoPositions map[string]VideoPositionView `json:"video_positions"`
}

// ProgressionService reads signals and computes the linear unlock state. The
// gate is a pure fold: can_access_step is the index of the first step whose
// leading predecessors are not all complete, so access extends exactly one
// step past the last completed one and never moves backward.
type ProgressionService interface {
	Overview(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) (*ProgressOverview, error)
}

type progressionService struct {
	db        *gorm.DB
	log       *logger.Logger
	catalog   CatalogService
	signals   repos.SignalRepo
	positions repos.VideoPositionRepo
}

func NewProgressionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog CatalogService,
	signals repos.SignalRepo,
	positions repos.VideoPositionRepo,
) ProgressionService {
	return &progressionService{
		db:        db,
		log:       baseLog.With("service", "ProgressionService"),
		catalog:   catalog,
		signals:   signals,
		positions: positions,
	}
}

func (s *progressionService) Overview(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) (*ProgressOverview, error) {
	_, steps, err := s.catalog.GetCourse(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}

	signals, err := s.signals.GetByActorAndCourseID(ctx, tx, actorID, courseID)
	if err != nil {
		return nil, err
	}
	byClassKind := map[string]map[string]bool{}
	for _, sig := range signals {
		if !sig.Value {
			continue
		}
		if byClassKind[sig.ClassID] == nil {
			byClassKind[sig.ClassID] = map[string]bool{}
		}
		byClassKind[sig.ClassID][sig.Kind] = true
	}

	positions, err := s.positions.GetByActorAndCourseID(ctx, tx, actorID, courseID)
	if err != nil {
		return nil, err
	}
	positionViews := map[string]VideoPositionView{}
	for _, p := range positions {
		positionViews[p.ClassID] = VideoPositionView{
			PositionSec: p.PositionSec,
			DurationSec: p.DurationSec,
		}
	}

	overview := &ProgressOverview{
		CourseID:       courseID,
		Steps:          make([]StepState, 0, len(steps)),
		VideoPositions: positionViews,
	}

	completedCount := 0
	gateOpen := true
	canAccess := 0
	for _, step := range steps {
		kinds := byClassKind[step.ClassID]
		state := StepState{
			ClassID:        step.ClassID,
			Idx:            step.Idx,
			Title:          step.Title,
			HasVideo:       step.HasVideo,
			HasQuiz:        step.HasQuiz,
			VideoCompleted: kinds[types.SignalVideoCompleted],
			QuizAttempted:  kinds[types.SignalQuizAttempted],
			QuizPassed:     kinds[types.SignalQuizPassed],
			StepCompleted:  kinds[types.SignalStepCompleted],
		}
		if state.StepCompleted {
			completedCount++
		}

		// A content-only step carries no media requirement, so its
		// step_completed signal materializes on the first view; until then it
		// is accessible but does not extend the gate.
		state.Accessible = gateOpen
		if gateOpen && state.StepCompleted {
			canAccess++
		} else {
			gateOpen = false
		}
		overview.Steps = append(overview.Steps, state)
	}
	if canAccess > len(steps) {
		canAccess = len(steps)
	}
	overview.CanAccessStep = canAccess

	total := len(steps)
	percent := 0.0
	if total > 0 {
		percent = math.Round(float64(completedCount)/float64(total)*10000) / 100
	}
	overview.CourseProgress = CourseProgress{
		Completed: completedCount,
		Total:     total,
		Percent:   percent,
	}
	return overview, nil
}
