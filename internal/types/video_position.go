package types

import (
	"time"

	"github.com/google/uuid"
)

// VideoPosition stores the last reported playback position for resume. It is
// overwritten by every ping; completion state lives in lms_signal, not here.
type VideoPosition struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_actor_class_pos" json:"actor_id"`
	ClassID     string    `gorm:"not null;uniqueIndex:idx_actor_class_pos" json:"class_id"`
	CourseID    string    `gorm:"not null;index" json:"course_id"`
	PositionSec float64   `gorm:"not null;default:0" json:"position_sec"`
	DurationSec float64   `gorm:"not null;default:0" json:"duration_sec"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (VideoPosition) TableName() string { return "lms_video_position" }
