package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/types"
)

const maxBatchSize = 100

type EventInput struct {
	Type     string         `json:"type"`
	CourseID string         `json:"course_id"`
	ClassID  string         `json:"class_id"`
	Payload  map[string]any `json:"payload"`
}

type QuizOutcome struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
	Passed  bool    `json:"passed"`
}

// EventResult is the full response to a triggering request, including whether
// this request caused a completion or award, so the caller can update its UI
// without a second round trip.
type EventResult struct {
	EventID        uuid.UUID       `json:"event_id"`
	Type           string          `json:"type"`
	ClassID        string          `json:"class_id"`
	Signals        map[string]bool `json:"signals"`
	StepCompleted  bool            `json:"step_completed"`
	Quiz           *QuizOutcome    `json:"quiz,omitempty"`
	Awards         []AwardView     `json:"awards,omitempty"`
	CanAccessStep  int             `json:"can_access_step"`
	CourseProgress CourseProgress  `json:"course_progress"`
}

type BatchItemOutcome struct {
	Index    int          `json:"index"`
	Accepted bool         `json:"accepted"`
	Code     string       `json:"code,omitempty"`
	Message  string       `json:"message,omitempty"`
	Result   *EventResult `json:"result,omitempty"`
}

// IngestService runs the write pipeline: validate, append the raw event,
// project signals, recompute the gate and evaluate rewards. Rate limiting and
// idempotency admission happen before this service is invoked.
type IngestService interface {
	IngestOne(ctx context.Context, in EventInput) (*EventResult, error)
	// IngestBatch applies members independently and in order; one failing
	// item never rolls back previously accepted ones.
	IngestBatch(ctx context.Context, ins []EventInput) ([]*BatchItemOutcome, error)
}

type ingestService struct {
	db          *gorm.DB
	log         *logger.Logger
	events      repos.EventRepo
	signals     repos.SignalRepo
	catalog     CatalogService
	projector   ProjectorService
	progression ProgressionService
	rewards     RewardService
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	events repos.EventRepo,
	signals repos.SignalRepo,
	catalog CatalogService,
	projector ProjectorService,
	progression ProgressionService,
	rewards RewardService,
) IngestService {
	return &ingestService{
		db:          db,
		log:         baseLog.With("service", "IngestService"),
		events:      events,
		signals:     signals,
		catalog:     catalog,
		projector:   projector,
		progression: progression,
		rewards:     rewards,
	}
}

func (s *ingestService) IngestOne(ctx context.Context, in EventInput) (*EventResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	step, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.checkPolicy(ctx, rd.UserID, in, step); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, ValidationError("unencodable payload: %v", err)
	}

	event := &types.Event{
		ID:        uuid.New(),
		ActorID:   rd.UserID,
		CourseID:  in.CourseID,
		ClassID:   in.ClassID,
		Type:      in.Type,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}

	var result *EventResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.events.Create(ctx, tx, []*types.Event{event}); err != nil {
			return err
		}

		projection, err := s.projector.Project(ctx, tx, event, step)
		if err != nil {
			return err
		}

		awards, err := s.rewards.EvaluateCompletion(ctx, tx, event, projection)
		if err != nil {
			return err
		}

		overview, err := s.progression.Overview(ctx, tx, rd.UserID, in.CourseID)
		if err != nil {
			return err
		}

		// The projection already counts toward the new percentage; back out
		// this event's own step completion to find the crossed bands.
		newPercent := overview.CourseProgress.Percent
		prevPercent := newPercent
		if projection.NewlyStepCompleted && overview.CourseProgress.Total > 0 {
			prevCompleted := overview.CourseProgress.Completed - 1
			prevPercent = float64(prevCompleted) / float64(overview.CourseProgress.Total) * 100
		}
		tierAwards, err := s.rewards.EvaluateTiers(ctx, tx, rd.UserID, in.CourseID, prevPercent, newPercent)
		if err != nil {
			return err
		}
		awards = append(awards, tierAwards...)

		result = &EventResult{
			EventID:        event.ID,
			Type:           event.Type,
			ClassID:        event.ClassID,
			Signals:        projection.Signals,
			StepCompleted:  projection.NewlyStepCompleted,
			Awards:         awards,
			CanAccessStep:  overview.CanAccessStep,
			CourseProgress: overview.CourseProgress,
		}
		if projection.QuizPercent != nil {
			result.Quiz = &QuizOutcome{
				Correct: projection.QuizCorrect,
				Total:   projection.QuizTotal,
				Percent: *projection.QuizPercent,
				Passed:  projection.Signals[types.SignalQuizPassed],
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ingestService) IngestBatch(ctx context.Context, ins []EventInput) ([]*BatchItemOutcome, error) {
	if len(ins) > maxBatchSize {
		return nil, ValidationError("too many events (max %d)", maxBatchSize)
	}

	// Sequential on purpose: events for the same (actor, class) must apply
	// in the supplied order.
	outcomes := make([]*BatchItemOutcome, 0, len(ins))
	for i, in := range ins {
		result, err := s.IngestOne(ctx, in)
		if err != nil {
			outcomes = append(outcomes, &BatchItemOutcome{
				Index:   i,
				Code:    CodeOf(err),
				Message: err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, &BatchItemOutcome{
			Index:    i,
			Accepted: true,
			Result:   result,
		})
	}
	return outcomes, nil
}

func (s *ingestService) validate(ctx context.Context, in EventInput) (*types.CourseStep, error) {
	switch in.Type {
	case types.EventVideoPing, types.EventVideoComplete, types.EventQuizSubmit, types.EventStepView:
	default:
		return nil, ValidationError("unknown event type %q", in.Type)
	}
	if in.CourseID == "" || in.ClassID == "" {
		return nil, ValidationError("course_id and class_id are required")
	}

	step, err := s.catalog.GetStep(ctx, nil, in.CourseID, in.ClassID)
	if err != nil {
		return nil, err
	}

	switch in.Type {
	case types.EventVideoPing:
		pos, okPos := numberField(in.Payload, "position_sec")
		dur, okDur := numberField(in.Payload, "duration_sec")
		if !okPos || !okDur {
			return nil, ValidationError("VIDEO_PING requires numeric position_sec and duration_sec")
		}
		if pos < 0 || dur <= 0 {
			return nil, ValidationError("VIDEO_PING position/duration out of range")
		}
		if !step.HasVideo {
			return nil, ValidationError("class %q has no video", in.ClassID)
		}
	case types.EventVideoComplete:
		if !step.HasVideo {
			return nil, ValidationError("class %q has no video", in.ClassID)
		}
	case types.EventQuizSubmit:
		answers, ok := in.Payload["answers"].(map[string]any)
		if !ok || len(answers) == 0 {
			return nil, ValidationError("QUIZ_SUBMIT requires a non-empty answers object")
		}
		if !step.HasQuiz {
			return nil, ValidationError("class %q has no quiz", in.ClassID)
		}
	}
	return step, nil
}

func (s *ingestService) checkPolicy(ctx context.Context, actorID uuid.UUID, in EventInput, step *types.CourseStep) error {
	if in.Type != types.EventQuizSubmit {
		return nil
	}

	// One scored attempt per (actor, class). A resubmission is a policy
	// rejection with its own code, never a silent reprocess.
	attempted, err := s.signals.Get(ctx, nil, actorID, in.ClassID, types.SignalQuizAttempted)
	if err != nil {
		return err
	}
	if attempted != nil && attempted.Value {
		return PolicyError("quiz already attempted for class %q", in.ClassID)
	}

	// The explicit end-of-media notice is what unlocks the quiz.
	if step.HasVideo {
		videoDone, err := s.signals.Get(ctx, nil, actorID, in.ClassID, types.SignalVideoCompleted)
		if err != nil {
			return err
		}
		if videoDone == nil || !videoDone.Value {
			return PolicyError("quiz for class %q is locked until the video is completed", in.ClassID)
		}
	}
	return nil
}

func numberField(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
