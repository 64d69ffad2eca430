package models

import "time"

// Upload is one proof file attached to a submission. The file itself lives
// on disk under the path stored here; rows are deleted with their submission.
type Upload struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SubmissionID uint      `json:"submission_id" gorm:"not null;index"`
	Name         string    `json:"name" gorm:"not null"`
	Path         string    `json:"path" gorm:"not null"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}
