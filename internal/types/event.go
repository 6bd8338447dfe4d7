package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event types accepted by the ingestion endpoint. Anything else is rejected
// before storage.
const (
	EventVideoPing     = "VIDEO_PING"
	EventVideoComplete = "VIDEO_COMPLETE"
	EventQuizSubmit    = "QUIZ_SUBMIT"
	EventStepView      = "STEP_VIEW"
	EventAdminReset    = "ADMIN_RESET"
)

// Event is an immutable behavioral fact. Rows are append-only: there is no
// update or delete path, and an administrative progress reset leaves them in
// place.
type Event struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"actor_id"`
	Actor     *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:ActorID;references:ID" json:"actor,omitempty"`
	CourseID  string         `gorm:"not null;index" json:"course_id"`
	ClassID   string         `gorm:"not null;index" json:"class_id"`
	Type      string         `gorm:"column:type;not null;index" json:"type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "lms_event" }
