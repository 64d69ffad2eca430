package models

import "time"

// OrderedTask links a Task into a Game and records its position. A task
// appears at most once per game; unordered associations have a null number.
// Join rows are owned by the game and hard-deleted with it.
type OrderedTask struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	GameID     uint      `json:"game_id" gorm:"not null;uniqueIndex:uniq_game_task_assoc"`
	TaskID     uint      `json:"task_id" gorm:"not null;uniqueIndex:uniq_game_task_assoc"`
	TaskNumber *int      `json:"task_number"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relationships
	Task Task `json:"task,omitempty"`
}
