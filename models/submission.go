package models

import (
	"time"

	"gorm.io/gorm"
)

// Submission is a group's claim that a task was completed, pending review.
// CreatedAt is the submission instant and the scoring tie-breaker; UpdatedAt
// moves on every save. Accepted stays null until a reviewer decides.
type Submission struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	GroupID        uint           `json:"group_id" gorm:"not null;index"`
	GameID         uint           `json:"game_id" gorm:"not null;index"`
	TaskID         uint           `json:"task_id" gorm:"not null;index"`
	SubmitterID    *uint          `json:"submitter_id"`
	Accepted       *bool          `json:"accepted"`
	PointsOverride *uint          `json:"points_override"`
	Explanation    string         `json:"explanation"`
	Feedback       string         `json:"feedback"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Group     PlayerGroup `json:"group,omitempty"`
	Game      Game        `json:"game,omitempty"`
	Task      Task        `json:"task,omitempty"`
	Submitter *User       `json:"submitter,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	Proofs    []Upload    `json:"proofs,omitempty" gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
}

func (s *Submission) IsAccepted() bool {
	return s.Accepted != nil && *s.Accepted
}
