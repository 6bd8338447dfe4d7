package types

import (
	"time"

	"gorm.io/datatypes"
)

// QuizKey holds the correct-answer set for a step's quiz. Answers is a JSON
// object mapping question key to the expected value; multi-select questions
// use an array and are compared as sets.
type QuizKey struct {
	ClassID   string         `gorm:"primaryKey" json:"class_id"`
	FormID    string         `gorm:"index" json:"form_id,omitempty"`
	Answers   datatypes.JSON `gorm:"type:jsonb;not null" json:"answers"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (QuizKey) TableName() string { return "quiz_key" }
