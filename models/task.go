package models

import (
	"time"

	"gorm.io/gorm"
)

// Task is a unit of work worth a fixed number of points, optionally with a
// recorded solution.
type Task struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Text      string         `json:"text" gorm:"not null"`
	Points    uint           `json:"points" gorm:"not null"`
	Solution  *string        `json:"solution,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Submissions []Submission `json:"submissions,omitempty" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}
