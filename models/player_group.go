package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerGroup is a team of players competing together in a game.
type PlayerGroup struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Members []User `json:"members,omitempty" gorm:"many2many:user_groups"`
	Games   []Game `json:"games,omitempty" gorm:"many2many:game_groups"`
}
