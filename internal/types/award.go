package types

import (
	"time"

	"github.com/google/uuid"
)

// Completion badge prefixes. The class id is appended so the
// (badge_id, actor_id) uniqueness constraint yields at-most-once per
// (actor, class, reward kind).
const (
	BadgeVideoComplete = "video_complete"
	BadgeQuizPassed    = "quiz_passed"
	BadgeStepComplete  = "step_complete"
)

// Mastery tier badge ids, awarded per course.
const (
	BadgeTierBronze = "tier_bronze"
	BadgeTierSilver = "tier_silver"
	BadgeTierGold   = "tier_gold"
	BadgeTierMaster = "tier_master"
)

// Award records points or a badge issued to a learner. The unique index on
// (badge_id, actor_id) is what makes issuance atomic: concurrent duplicate
// triggers race on the insert and exactly one wins.
type Award struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BadgeID   string    `gorm:"not null;uniqueIndex:idx_badge_actor" json:"badge_id"`
	ActorID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_badge_actor;index" json:"actor_id"`
	CourseID  string    `gorm:"not null;index" json:"course_id"`
	ClassID   string    `gorm:"" json:"class_id,omitempty"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
}

func (Award) TableName() string { return "gamification_award" }
