package types

import (
	"time"
)

// Course is content-collaborator data: the engine reads it to know step order
// and media presence, it never writes it outside of the seed loader.
type Course struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// CourseStep is one step (class) of a course. Idx is the 0-based position in
// the linear unlock order.
type CourseStep struct {
	ClassID          string    `gorm:"primaryKey" json:"class_id"`
	CourseID         string    `gorm:"not null;index:idx_course_idx" json:"course_id"`
	Course           *Course   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	Idx              int       `gorm:"not null;index:idx_course_idx" json:"idx"`
	Title            string    `gorm:"not null" json:"title"`
	HasVideo         bool      `gorm:"not null;default:false" json:"has_video"`
	HasQuiz          bool      `gorm:"not null;default:false" json:"has_quiz"`
	VideoDurationSec float64   `gorm:"not null;default:0" json:"video_duration_sec,omitempty"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (CourseStep) TableName() string { return "course_step" }
