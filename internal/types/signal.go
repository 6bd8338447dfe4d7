package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Signal kinds derived by the projector.
const (
	SignalVideoCompleted = "video_completed"
	SignalQuizAttempted  = "quiz_attempted"
	SignalQuizPassed     = "quiz_passed"
	SignalStepCompleted  = "step_completed"
)

// Signal is a derived fact about a learner's relationship to a step, keyed by
// (actor_id, class_id, kind). Writes go through SignalRepo.Upgrade, which
// only ever flips Value from false to true; a signal never reverts.
type Signal struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_actor_class_kind" json:"actor_id"`
	ClassID   string         `gorm:"not null;uniqueIndex:idx_actor_class_kind" json:"class_id"`
	Kind      string         `gorm:"not null;uniqueIndex:idx_actor_class_kind" json:"kind"`
	CourseID  string         `gorm:"not null;index" json:"course_id"`
	Value     bool           `gorm:"not null;default:false" json:"value"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Signal) TableName() string { return "lms_signal" }
