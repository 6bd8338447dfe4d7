package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

type Projection struct {
	// Current value per signal kind for the event's (actor, class).
	Signals map[string]bool
	// Transitions caused by this event, as opposed to already-true state.
	NewlyVideoCompleted bool
	NewlyQuizPassed     bool
	NewlyStepCompleted  bool
	QuizPercent         *float64
	QuizCorrect         int
	QuizTotal           int
}

// ProjectorService folds a stored event into derived signals. All writes go
// through SignalRepo.Upgrade, so re-deriving from stale or out-of-order
// events can never un-set a signal.
type ProjectorService interface {
	Project(ctx context.Context, tx *gorm.DB, event *types.Event, step *types.CourseStep) (*Projection, error)
}

type projectorService struct {
	db             *gorm.DB
	log            *logger.Logger
	signals        repos.SignalRepo
	positions      repos.VideoPositionRepo
	catalog        CatalogService
	videoThreshold float64
	quizThreshold  float64
}

func NewProjectorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	signals repos.SignalRepo,
	positions repos.VideoPositionRepo,
	catalog CatalogService,
	videoThreshold float64,
	quizThreshold float64,
) ProjectorService {
	if videoThreshold <= 0 || videoThreshold > 1 {
		videoThreshold = 0.90
	}
	if quizThreshold <= 0 || quizThreshold > 1 {
		quizThreshold = 0.80
	}
	return &projectorService{
		db:             db,
		log:            baseLog.With("service", "ProjectorService"),
		signals:        signals,
		positions:      positions,
		catalog:        catalog,
		videoThreshold: videoThreshold,
		quizThreshold:  quizThreshold,
	}
}

type videoPingPayload struct {
	PositionSec float64 `json:"position_sec"`
	DurationSec float64 `json:"duration_sec"`
}

type quizSubmitPayload struct {
	FormID  string         `json:"form_id,omitempty"`
	Answers map[string]any `json:"answers"`
}

func (s *projectorService) Project(ctx context.Context, tx *gorm.DB, event *types.Event, step *types.CourseStep) (*Projection, error) {
	if event == nil || step == nil {
		return nil, fmt.Errorf("projector: nil event or step")
	}

	result := &Projection{Signals: map[string]bool{}}
	now := time.Now().UTC()

	switch event.Type {
	case types.EventVideoPing:
		var payload videoPingPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, ValidationError("invalid VIDEO_PING payload: %v", err)
		}
		if err := s.positions.Upsert(ctx, tx, &types.VideoPosition{
			ID:          uuid.New(),
			ActorID:     event.ActorID,
			ClassID:     event.ClassID,
			CourseID:    event.CourseID,
			PositionSec: payload.PositionSec,
			DurationSec: payload.DurationSec,
			UpdatedAt:   now,
		}); err != nil {
			return nil, err
		}
		progress := payload.PositionSec / payload.DurationSec
		if progress >= s.videoThreshold {
			changed, err := s.upgrade(ctx, tx, event, types.SignalVideoCompleted, nil, now)
			if err != nil {
				return nil, err
			}
			result.NewlyVideoCompleted = changed
		}

	case types.EventVideoComplete:
		// Authoritative end-of-media notice. Pings sample a continuous
		// position and can under-sample near the end, so this completes the
		// video regardless of the last observed position.
		changed, err := s.upgrade(ctx, tx, event, types.SignalVideoCompleted, nil, now)
		if err != nil {
			return nil, err
		}
		result.NewlyVideoCompleted = changed

	case types.EventQuizSubmit:
		var payload quizSubmitPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, ValidationError("invalid QUIZ_SUBMIT payload: %v", err)
		}
		key, err := s.catalog.GetQuizKey(ctx, tx, event.ClassID)
		if err != nil {
			return nil, err
		}
		var keyAnswers map[string]any
		if err := json.Unmarshal(key.Answers, &keyAnswers); err != nil {
			return nil, fmt.Errorf("decode answer key for %q: %w", event.ClassID, err)
		}
		correct, total := scoreQuiz(payload.Answers, keyAnswers)
		percent := 0.0
		if total > 0 {
			percent = float64(correct) / float64(total)
		}
		passed := percent >= s.quizThreshold

		meta, _ := json.Marshal(map[string]any{
			"correct": correct,
			"total":   total,
			"percent": percent,
		})
		if _, err := s.upgrade(ctx, tx, event, types.SignalQuizAttempted, meta, now); err != nil {
			return nil, err
		}
		if passed {
			changed, err := s.upgrade(ctx, tx, event, types.SignalQuizPassed, meta, now)
			if err != nil {
				return nil, err
			}
			result.NewlyQuizPassed = changed
		}
		result.QuizPercent = &percent
		result.QuizCorrect = correct
		result.QuizTotal = total

	case types.EventStepView:
		// Nothing to derive directly; the step-completion fold below makes
		// a content-only step complete on its first view.

	default:
		return nil, ValidationError("unknown event type %q", event.Type)
	}

	videoDone, err := s.current(ctx, tx, event.ActorID, event.ClassID, types.SignalVideoCompleted)
	if err != nil {
		return nil, err
	}
	quizDone, err := s.current(ctx, tx, event.ActorID, event.ClassID, types.SignalQuizPassed)
	if err != nil {
		return nil, err
	}

	stepComplete := (!step.HasVideo || videoDone) && (!step.HasQuiz || quizDone)
	if stepComplete {
		changed, err := s.upgrade(ctx, tx, event, types.SignalStepCompleted, nil, now)
		if err != nil {
			return nil, err
		}
		result.NewlyStepCompleted = changed
	}

	result.Signals[types.SignalVideoCompleted] = videoDone
	result.Signals[types.SignalQuizPassed] = quizDone
	result.Signals[types.SignalStepCompleted] = stepComplete
	return result, nil
}

func (s *projectorService) upgrade(ctx context.Context, tx *gorm.DB, event *types.Event, kind string, metadata []byte, now time.Time) (bool, error) {
	row := &types.Signal{
		ID:        uuid.New(),
		ActorID:   event.ActorID,
		ClassID:   event.ClassID,
		CourseID:  event.CourseID,
		Kind:      kind,
		Value:     true,
		UpdatedAt: now,
	}
	if metadata != nil {
		row.Metadata = datatypes.JSON(metadata)
	}
	return s.signals.Upgrade(ctx, tx, row)
}

func (s *projectorService) current(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, classID, kind string) (bool, error) {
	sig, err := s.signals.Get(ctx, tx, actorID, classID, kind)
	if err != nil {
		return false, err
	}
	return sig != nil && sig.Value, nil
}

// scoreQuiz compares submitted answers against the answer key, one point per
// question. Multi-select answers are compared as sets; a comma-separated
// string is accepted for them as well, matching how form webhooks deliver
// multi-select values.
func scoreQuiz(answers, key map[string]any) (correct, total int) {
	total = len(key)
	for question, expected := range key {
		submitted, ok := answers[question]
		if !ok {
			continue
		}
		if expectedList, isList := expected.([]any); isList {
			if answerSetsEqual(expectedList, submitted) {
				correct++
			}
			continue
		}
		if normalizeAnswer(expected) == normalizeAnswer(submitted) {
			correct++
		}
	}
	return correct, total
}

func answerSetsEqual(expected []any, submitted any) bool {
	want := make([]string, 0, len(expected))
	for _, v := range expected {
		want = append(want, normalizeAnswer(v))
	}

	var got []string
	switch v := submitted.(type) {
	case []any:
		for _, item := range v {
			got = append(got, normalizeAnswer(item))
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			got = append(got, strings.TrimSpace(part))
		}
	default:
		return false
	}

	if len(want) != len(got) {
		return false
	}
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func normalizeAnswer(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode to float64; render integers without a
		// trailing ".0" so "3" and 3 compare equal.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
